package domain

// AllProtests is the synthetic category set on every record.
const AllProtests = "all_protests"

// Category is a dropdown option: a column key and its display label.
type Category struct {
	Key   string `json:"value"`
	Label string `json:"label"`
}

// catalog lists the known categories in dropdown order. The keys match the
// flag column names of the source CSV, including their odd hyphenation.
var catalog = []Category{
	{Key: AllProtests, Label: "All Protests"},
	{Key: "Opposition_to_Foreign_Agricultural_Imports", Label: "Opposition to Foreign Agricultural Imports"},
	{Key: "Environmental_Regulations_and_Agricultural_Standards", Label: "Environmental Regulations and Agricultural Standards"},
	{Key: "Subsidy_Cuts", Label: "Subsidy Cuts"},
	{Key: "Bureaucratic_Constraints", Label: "Bureaucratic Constraints"},
	{Key: "Rising_Production_Costs", Label: "Rising Production Costs"},
	{Key: "National_and_Local_State_Support", Label: "National and Local State Support"},
	{Key: "Fair_Compensation_and_Market_Practices", Label: "Fair Compensation and Market Practices"},
	{Key: "Climate_and_Natural_Disaster_Relief", Label: "Climate and Natural Disaster Relief"},
	{Key: "Economic_Struggles_and_Agricultural_Livelihoods", Label: "Economic Struggles and Agricultural Livelihoods"},
	{Key: "Labor_and_Social_Conditions", Label: "Labor and Social Conditions"},
	{Key: "Opposition_to_EU_Free-_Trade_Agreements", Label: "Opposition to EU Free-Trade Agreements"},
	{Key: "Solidarity_Movements", Label: "Solidarity Movements"},
	{Key: "Livestock_and_Animal_Welfare_Protests", Label: "Livestock and Animal Welfare Protests"},
	{Key: "Miscellaneous_Agriculture-_Related_Protests", Label: "Miscellaneous Agriculture-Related Protests"},
	{Key: "Infrastructure_and_Transport_Policies", Label: "Infrastructure and Transport Policies"},
	{Key: "Opposition_to_Non-_Traditional_Products", Label: "Opposition to Non-Traditional Products"},
	{Key: "Opposition_to_Renewable_Energy_Projects", Label: "Opposition to Renewable Energy Projects"},
	{Key: "Consumer_Awareness_Initiatives", Label: "Consumer Awareness Initiatives"},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, c := range catalog {
		idx[c.Key] = i
	}
	return idx
}()

// Categories returns a copy of the known categories in dropdown order.
func Categories() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// ReasonKeys returns the keys of every category backed by a CSV column,
// i.e. all known categories except AllProtests.
func ReasonKeys() []string {
	keys := make([]string, 0, len(catalog)-1)
	for _, c := range catalog {
		if c.Key != AllProtests {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// IsCategory reports whether key is a known category.
func IsCategory(key string) bool {
	_, ok := catalogIndex[key]
	return ok
}

// CategoryLabel returns the display label for key, or "" if unknown.
func CategoryLabel(key string) string {
	i, ok := catalogIndex[key]
	if !ok {
		return ""
	}
	return catalog[i].Label
}
