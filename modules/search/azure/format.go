package azure

import (
	"fmt"
	"strings"
)

type label struct {
	name  string
	field string
}

var (
	productLabels = []label{
		{"Product Segment", "Product_Segment"},
		{"Product Name", "Product_Name"},
		{"Unique Point", "Unique_Pros"},
		{"Product Benefit", "Benefit"},
		{"Product Condition", "Condition"},
		{"Product Description", "Product_Description"},
		{"URL", "Product_URL"},
	}
	serviceLabels = []label{
		{"Service Segment", "Service_Segment"},
		{"Service Name", "Service_Name"},
		{"Service Detail", "Service_Detail"},
		{"URL", "Service_URL"},
	}
)

func formatProducts(hits []map[string]any) string { return format(hits, productLabels) }

func formatServices(hits []map[string]any) string { return format(hits, serviceLabels) }

// format renders each hit as "Label: value" lines; hits are separated by
// a blank line.
func format(hits []map[string]any, labels []label) string {
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines := make([]string, 0, len(labels))
		for _, l := range labels {
			lines = append(lines, l.name+": "+stringify(hit[l.field]))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
