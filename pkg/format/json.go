package format

import (
	"encoding/json"
	"fmt"
	"io"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// extractJSON reads an array of objects (one item each) or a single object.
// Objects are decoded token by token so that field order is kept.
func extractJSON(r io.Reader) (*rawdata.Data, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral), "error while parsing JSON", err)
	}

	data := &rawdata.Data{}
	switch v := root.(type) {
	case rawdata.List:
		for i, obj := range v {
			item := rawdata.NewItem(i + 1)
			copyFields(item, obj)
			data.Items = append(data.Items, item)
			for _, name := range obj.Names() {
				data.AddFieldName(name)
			}
		}
	case *rawdata.Object:
		item := rawdata.NewItem(1)
		copyFields(item, v)
		data.Items = append(data.Items, item)
		for _, name := range v.Names() {
			data.AddFieldName(name)
		}
	}
	return data, nil
}

func copyFields(item *rawdata.Item, obj *rawdata.Object) {
	for _, name := range obj.Names() {
		item.Set(name, obj.Get(name))
	}
}

func decodeValue(dec *json.Decoder) (rawdata.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case nil:
		return nil, nil
	case string:
		return rawdata.Scalar(t), nil
	case json.Number:
		return rawdata.Scalar(t.String()), nil
	case bool:
		return rawdata.Scalar(fmt.Sprint(t)), nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func decodeObject(dec *json.Decoder) (*rawdata.Object, error) {
	obj := rawdata.NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeArray yields a list of objects. Non-object elements become empty objects.
func decodeArray(dec *json.Decoder) (rawdata.List, error) {
	list := rawdata.List{}
	for dec.More() {
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj, ok := value.(*rawdata.Object)
		if !ok {
			obj = rawdata.NewObject()
		}
		list = append(list, obj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return list, nil
}
