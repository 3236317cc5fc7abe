package tools

import "testing"

func TestSchemaDeclaresArrayItemsType(t *testing.T) {
	tool := &echoTool{
		meta: Metadata{Name: "search", Description: "search things"},
		params: []ToolParameter{
			{Name: "queries", Type: ParamArray, ItemsType: ParamString, Required: true},
		},
	}
	schema := Schema(tool)
	prop, ok := schema.Parameters.Properties["queries"]
	if !ok {
		t.Fatalf("missing queries property")
	}
	if prop.Type != "array" {
		t.Fatalf("expected array type, got %s", prop.Type)
	}
	if prop.Items == nil || prop.Items.Type != "string" {
		t.Fatalf("expected items.type=string, got %+v", prop.Items)
	}
	if len(schema.Parameters.Required) != 1 || schema.Parameters.Required[0] != "queries" {
		t.Fatalf("expected queries marked required, got %v", schema.Parameters.Required)
	}
}
