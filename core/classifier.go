package core

import (
	"net/http"

	"bacman/models"
)

// Classify compares the status codes of the original and replayed responses.
// Lengths are carried for display only. An unknown status on either side never matches.
func Classify(original, test models.ResponseSummary) models.RiskCategory {
	if !original.Known() || !test.Known() {
		return models.RiskNone
	}
	switch {
	case original.StatusCode != http.StatusOK && test.StatusCode == http.StatusOK:
		return models.RiskHigh
	case original.StatusCode == http.StatusOK && test.StatusCode == http.StatusOK:
		return models.RiskMedium
	}
	return models.RiskNone
}
