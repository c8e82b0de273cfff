package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// booster is a table pattern and an item pattern that must both match.
type booster struct {
	table *regexp.Regexp
	item  *regexp.Regexp
}

// archetype is one entry of the relationship catalogue. Table patterns run
// against snake_case table names, so they avoid \b.
type archetype struct {
	Type          models.RelationshipType
	TablePatterns []*regexp.Regexp
	ItemPatterns  []*regexp.Regexp
	Boosters      []booster
	WeakWords     []string
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func boost(table, item string) booster {
	return booster{table: regexp.MustCompile(`(?i)` + table), item: regexp.MustCompile(`(?i)` + item)}
}

// genericItem marks aggregate-sounding descriptions that are pushed toward MEASURES.
var genericItem = regexp.MustCompile(`(?i)\btotal\b|\baverage\b|\bshare of\b|\bmean\b|\bper cent\b`)

// archetypes is the catalogue in tie-break order.
var archetypes = []archetype{
	{
		Type:          models.RelationshipTrades,
		TablePatterns: res(`trade`, `matrix`, `export`, `import`),
		ItemPatterns:  res(`\bexport`, `\bimport`, `\bre-?export`, `\btrade\b`),
		Boosters:      []booster{boost(`trade|export|import`, `\bexport|\bimport`)},
		WeakWords:     []string{"quantity", "value", "shipment"},
	},
	{
		Type:          models.RelationshipProduces,
		TablePatterns: res(`production`, `crops`, `livestock`, `produc`),
		ItemPatterns:  res(`\bproduc`, `\byield`, `\barea harvested`, `\bharvest`, `\bstocks\b`, `\blaying\b`, `\bmilk animals`, `\bslaughter`),
		Boosters:      []booster{boost(`produc|crops|livestock`, `\bproduc|\byield|\bharvest`)},
		WeakWords:     []string{"tonnes", "output", "head"},
	},
	{
		Type:          models.RelationshipSupplies,
		TablePatterns: res(`supply`, `food_?balance`, `commodity_?balance`, `fbs`, `sua`),
		ItemPatterns:  res(`\bsupply\b`, `\bdomestic supply`, `\bfood supply`, `\bavailability`),
		Boosters:      []booster{boost(`supply|balance`, `\bsupply\b`)},
		WeakWords:     []string{"kcal", "protein", "fat", "capita"},
	},
	{
		Type:          models.RelationshipConsumes,
		TablePatterns: res(`consumption`, `diet`, `food_?security`, `intake`),
		ItemPatterns:  res(`\bconsum`, `\bintake\b`, `\bdietary`, `\bundernourish`, `\bfood insecur`),
		Boosters:      []booster{boost(`consumption|diet|security`, `\bconsum|\bintake\b|\bdietary`)},
		WeakWords:     []string{"food", "nutrition", "diet"},
	},
	{
		Type:          models.RelationshipUtilizes,
		TablePatterns: res(`input`, `fertili[sz]er`, `pesticide`, `land_?use`, `machinery`),
		ItemPatterns:  res(`\buse\b`, `\busage\b`, `\butili[sz]`, `\bapplied\b`, `\bfertili[sz]er`, `\bpesticide`, `\birrigat`),
		Boosters:      []booster{boost(`input|fertili|pesticide|land`, `\buse\b|\butili|\bapplied\b`)},
		WeakWords:     []string{"land", "nutrient", "machinery"},
	},
	{
		Type:          models.RelationshipEmits,
		TablePatterns: res(`emission`, `climate`, `ghg`),
		ItemPatterns:  res(`\bemission`, `\bco2`, `\bch4\b`, `\bn2o\b`, `\bgreenhouse`, `\bmethane`, `\bcarbon`),
		Boosters:      []booster{boost(`emission|ghg`, `\bemission|\bco2|\bch4\b|\bn2o\b`)},
		WeakWords:     []string{"gigagrams", "kt", "eq"},
	},
	{
		Type:          models.RelationshipEmploys,
		TablePatterns: res(`employ`, `labou?r`, `workforce`),
		ItemPatterns:  res(`\bemploy`, `\bworkers?\b`, `\blabou?r`, `\bworkforce`, `\bjobs?\b`),
		Boosters:      []booster{boost(`employ|labou?r`, `\bemploy|\bworkers?\b`)},
		WeakWords:     []string{"persons", "people", "hours"},
	},
	{
		Type:          models.RelationshipInvests,
		TablePatterns: res(`invest`, `credit`, `expenditure`, `finance`, `flows`, `aid`),
		ItemPatterns:  res(`\binvest`, `\bexpenditure`, `\bcredit`, `\bloans?\b`, `\bgrants?\b`, `\bdisburse`, `\bcommitment`, `\bcapital\b`),
		Boosters:      []booster{boost(`invest|flows|aid|credit`, `\binvest|\bdisburse|\bcommitment|\bcredit`)},
		WeakWords:     []string{"usd", "million", "dollars"},
	},
	{
		Type:          models.RelationshipMeasures,
		TablePatterns: res(`indicator`, `statistic`, `index`, `price`, `sdg`),
		ItemPatterns:  res(`\bindex\b`, `\bindicator`, `\brate\b`, `\bratio\b`, `\bpercent`, `\bprice`, `\bprevalence`, `\bshare\b`),
		WeakWords:     []string{"number", "value", "level"},
	},
	{
		Type:          models.RelationshipImpacts,
		TablePatterns: res(`disaster`, `loss`, `damage`, `environment`, `temperature`),
		ItemPatterns:  res(`\bloss`, `\bdamage`, `\bchange\b`, `\bimpact`, `\btemperature`, `\bdrought`, `\bflood`, `\bwaste\b`),
		Boosters:      []booster{boost(`disaster|loss|temperature|environment`, `\bloss|\bdamage|\bchange\b|\btemperature`)},
		WeakWords:     []string{"affected", "anomaly"},
	},
}

// ============================================================================
// Derived properties
// ============================================================================

func itemHas(item string, words ...string) bool {
	lower := strings.ToLower(item)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// itemProperties derives archetype-specific properties for one item.
func itemProperties(t models.RelationshipType, item string, generic bool) map[string]string {
	switch t {
	case models.RelationshipTrades:
		imp, exp := itemHas(item, "import"), itemHas(item, "export")
		switch {
		case imp && exp:
			return map[string]string{"flow_direction": "both"}
		case imp:
			return map[string]string{"flow_direction": "import"}
		case exp:
			return map[string]string{"flow_direction": "export"}
		default:
			return map[string]string{"flow_direction": "unknown"}
		}
	case models.RelationshipProduces:
		switch {
		case itemHas(item, "yield"):
			return map[string]string{"measure": "yield"}
		case itemHas(item, "area harvested", "area"):
			return map[string]string{"measure": "area"}
		case itemHas(item, "stocks", "animals", "laying"):
			return map[string]string{"measure": "stocks"}
		default:
			return map[string]string{"measure": "quantity"}
		}
	case models.RelationshipSupplies:
		switch {
		case itemHas(item, "kcal", "energy"):
			return map[string]string{"nutrient": "energy"}
		case itemHas(item, "protein"):
			return map[string]string{"nutrient": "protein"}
		case itemHas(item, "fat"):
			return map[string]string{"nutrient": "fat"}
		default:
			return map[string]string{"nutrient": "quantity"}
		}
	case models.RelationshipUtilizes:
		switch {
		case itemHas(item, "fertili"):
			return map[string]string{"input_type": "fertilizer"}
		case itemHas(item, "pesticide"):
			return map[string]string{"input_type": "pesticide"}
		case itemHas(item, "irrigat", "water"):
			return map[string]string{"input_type": "water"}
		case itemHas(item, "land", "area"):
			return map[string]string{"input_type": "land"}
		default:
			return map[string]string{"input_type": "other"}
		}
	case models.RelationshipEmits:
		switch {
		case itemHas(item, "co2eq", "co2 eq", "co2-eq"):
			return map[string]string{"gas": "CO2eq"}
		case itemHas(item, "co2", "carbon dioxide"):
			return map[string]string{"gas": "CO2"}
		case itemHas(item, "ch4", "methane"):
			return map[string]string{"gas": "CH4"}
		case itemHas(item, "n2o", "nitrous"):
			return map[string]string{"gas": "N2O"}
		default:
			return map[string]string{"gas": "unspecified"}
		}
	case models.RelationshipInvests:
		if itemHas(item, "disburse", "commitment", "grant") {
			return map[string]string{"flow": "aid"}
		}
		return map[string]string{"flow": "investment"}
	case models.RelationshipMeasures:
		if generic {
			return map[string]string{"aggregate": "true"}
		}
		return map[string]string{"aggregate": "false"}
	case models.RelationshipConsumes, models.RelationshipEmploys, models.RelationshipImpacts:
		return nil
	}
	return nil
}

// mergeProperties combines item properties into group properties. Differing
// values are joined in sorted order; TRADES collapses import+export to "both".
func mergeProperties(t models.RelationshipType, items []models.RelationshipTypeScore) map[string]string {
	values := make(map[string]map[string]bool)
	for _, it := range items {
		for k, v := range it.Properties {
			if values[k] == nil {
				values[k] = make(map[string]bool)
			}
			values[k][v] = true
		}
	}
	if len(values) == 0 {
		return nil
	}

	out := make(map[string]string, len(values))
	for k, set := range values {
		if t == models.RelationshipTrades && k == "flow_direction" {
			delete(set, "unknown")
			switch {
			case set["both"] || (set["import"] && set["export"]):
				out[k] = "both"
			case set["import"]:
				out[k] = "import"
			case set["export"]:
				out[k] = "export"
			default:
				out[k] = "unknown"
			}
			continue
		}
		vs := make([]string, 0, len(set))
		for v := range set {
			vs = append(vs, v)
		}
		sort.Strings(vs)
		out[k] = strings.Join(vs, ",")
	}
	return out
}
