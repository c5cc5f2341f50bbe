package providers

import (
	"encoding/json"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

// Tier records how far a search had to widen before it found providers.
type Tier string

const (
	TierNone    Tier = ""
	TierNearby  Tier = "nearby"
	TierBroader Tier = "broader"
)

// Widened reports whether the results may not match the requested specialty.
func (t Tier) Widened() bool {
	return t != TierNone
}

// Provider is a clinician or organization from the NPI registry.
type Provider struct {
	NPI        string `json:"npi"`
	Name       string `json:"name"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// departmentTaxonomy maps clinic departments onto NPI taxonomy descriptions.
var departmentTaxonomy = map[string]string{
	scheduling.Dermatology:     "Dermatology",
	scheduling.Cardiology:      "Cardiology",
	scheduling.GeneralMedicine: "Family Medicine",
	scheduling.Pediatrics:      "Pediatrics",
	scheduling.Orthopedics:     "Orthopaedic Surgery",
}

// Taxonomy returns the taxonomy description searched for a department.
// Unknown departments are searched verbatim.
func Taxonomy(department string) string {
	if tax, ok := departmentTaxonomy[department]; ok {
		return tax
	}
	return department
}

type npiResponse struct {
	ResultCount int         `json:"result_count"`
	Results     []npiResult `json:"results"`
}

type npiResult struct {
	Number json.Number `json:"number"`
	Basic  struct {
		Name             string `json:"name"`
		OrganizationName string `json:"organization_name"`
		FirstName        string `json:"first_name"`
		LastName         string `json:"last_name"`
	} `json:"basic"`
	Addresses []struct {
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
	} `json:"addresses"`
	Taxonomies []struct {
		Desc                string `json:"desc"`
		TaxonomyDescription string `json:"taxonomy_description"`
	} `json:"taxonomies"`
}

type zipResponse struct {
	Places []struct {
		PlaceName         string `json:"place name"`
		StateAbbreviation string `json:"state abbreviation"`
	} `json:"places"`
}
