package format

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

type element struct {
	name     string
	text     strings.Builder
	children []*element
}

func (e *element) textOnly() bool {
	return len(e.children) == 0
}

func (e *element) hasSimpleValues() bool {
	for _, c := range e.children {
		if c.textOnly() {
			return true
		}
	}
	return false
}

// extractXML reads the document below the root element. A root holding any
// text-only child is a single item, otherwise every child of the root is an item.
func extractXML(r io.Reader) (*rawdata.Data, error) {
	root, err := parseXML(r)
	if err != nil {
		return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral), "error while parsing XML", err)
	}

	data := &rawdata.Data{}
	if root.hasSimpleValues() {
		item := rawdata.NewItem(1)
		readElement(root, item.Fields())
		data.Items = append(data.Items, item)
		for _, c := range root.children {
			data.AddFieldName(c.name)
		}
		return data, nil
	}

	for i, child := range root.children {
		item := rawdata.NewItem(i + 1)
		readElement(child, item.Fields())
		data.Items = append(data.Items, item)
		for _, c := range child.children {
			data.AddFieldName(c.name)
		}
	}
	return data, nil
}

func readElement(parent *element, obj *rawdata.Object) {
	var tags []string
	groups := make(map[string][]*element)
	for _, c := range parent.children {
		if c.textOnly() {
			obj.Set(c.name, rawdata.Scalar(strings.TrimSpace(c.text.String())))
			continue
		}
		if _, ok := groups[c.name]; !ok {
			tags = append(tags, c.name)
		}
		groups[c.name] = append(groups[c.name], c)
	}

	for _, tag := range tags {
		elements := groups[tag]
		if len(elements) == 1 {
			el := elements[0]
			if el.hasSimpleValues() {
				obj.Set(tag, toObject(el))
			} else {
				obj.Set(tag, toList(el.children))
			}
			continue
		}
		obj.Set(tag, toList(elements))
	}
}

func toObject(el *element) *rawdata.Object {
	obj := rawdata.NewObject()
	readElement(el, obj)
	return obj
}

func toList(elements []*element) rawdata.List {
	list := make(rawdata.List, 0, len(elements))
	for _, el := range elements {
		list = append(list, toObject(el))
	}
	return list
}

func parseXML(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	// input is already decoded to UTF-8
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("document has no root element")
	}
	return root, nil
}
