package scoring

import "strings"

// Statistic keys. The populate job writes these and the engine reads them.
const (
	KeyAvgComplaintsPerDocument = "avg_complaints_per_document"
	KeyTotalDocuments           = "total_documents"
	KeyAvgComplaintsPer1000     = "avg_complaints_per_1000"
	KeyMinReliabilityScore      = "min_reliability_score"
	KeyMaxReliabilityScore      = "max_reliability_score"
	KeyAvgReliabilityScore      = "avg_reliability_score"
)

// MakeKey is the average-complaints key for a make.
func MakeKey(vehicleMake string) string {
	return "avg_complaints_make_" + strings.ToLower(strings.ReplaceAll(vehicleMake, " ", "_"))
}

// MakeModelKey is the average-complaints key for a make and model.
func MakeModelKey(vehicleMake, model string) string {
	r := strings.NewReplacer(" ", "_", "-", "_")
	return "avg_complaints_" + strings.ToLower(r.Replace(vehicleMake+"-"+model))
}

// CategoryKey is the global total-complaints key for an already normalized category.
func CategoryKey(category string) string {
	return "total_complaints_category_" + strings.ToLower(strings.ReplaceAll(category, " ", "_"))
}
