package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lattice/jsonval"
)

// ConvertImage converts a DynamoDB stream image to a JSON object. Numbers
// keep their literal text, binary values become base64 strings and sets
// become arrays.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) (jsonval.Object, error) {
	out := make(jsonval.Object, len(image))
	for k, v := range image {
		jv, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = jv
	}
	return out, nil
}

func convertValue(v events.DynamoDBAttributeValue) (jsonval.Value, error) {
	switch v.DataType() {
	case events.DataTypeNull:
		return jsonval.Null(), nil
	case events.DataTypeString:
		return jsonval.String(v.String()), nil
	case events.DataTypeNumber:
		return number(v.Number())
	case events.DataTypeBoolean:
		return jsonval.Bool(v.Boolean()), nil
	case events.DataTypeBinary:
		return jsonval.String(base64.StdEncoding.EncodeToString(v.Binary())), nil
	case events.DataTypeStringSet:
		out := make(jsonval.Array, 0, len(v.StringSet()))
		for _, s := range v.StringSet() {
			out = append(out, jsonval.String(s))
		}
		return out.Value(), nil
	case events.DataTypeNumberSet:
		out := make(jsonval.Array, 0, len(v.NumberSet()))
		for _, s := range v.NumberSet() {
			n, err := number(s)
			if err != nil {
				return jsonval.Null(), err
			}
			out = append(out, n)
		}
		return out.Value(), nil
	case events.DataTypeBinarySet:
		out := make(jsonval.Array, 0, len(v.BinarySet()))
		for _, b := range v.BinarySet() {
			out = append(out, jsonval.String(base64.StdEncoding.EncodeToString(b)))
		}
		return out.Value(), nil
	case events.DataTypeList:
		out := make(jsonval.Array, 0, len(v.List()))
		for i, el := range v.List() {
			jv, err := convertValue(el)
			if err != nil {
				return jsonval.Null(), fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, jv)
		}
		return out.Value(), nil
	case events.DataTypeMap:
		obj, err := ConvertImage(v.Map())
		if err != nil {
			return jsonval.Null(), err
		}
		return obj.Value(), nil
	}
	return jsonval.Null(), fmt.Errorf("unsupported data type %d", v.DataType())
}

func number(s string) (jsonval.Value, error) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return jsonval.Null(), fmt.Errorf("invalid number %q", s)
	}
	return jsonval.Number(json.Number(s)), nil
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
