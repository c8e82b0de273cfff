package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// DefaultFactFilePattern matches the "normalized dataset" naming convention,
// e.g. "Production_Crops_Livestock_E_All_Data_(Normalized).csv".
const DefaultFactFilePattern = `(?i)(\(normalized\)|_normalized)(\.[a-z]+)?$`

// DefaultStringColumnTokens are name tokens that force a column to String.
var DefaultStringColumnTokens = []string{
	"code", "flag", "flags", "id", "identifier", "symbol", "note", "notes",
	"description", "desc", "unit", "iso2", "iso3", "m49", "cpc", "fbs", "sdg",
}

func codeEntity(entityType, code, description string, secondary []string, role models.EntityRole) models.EntityDefinition {
	return models.EntityDefinition{
		EntityType:       entityType,
		PrimaryKeyNames:  []string{code},
		DescriptionNames: []string{description},
		SecondaryNames:   secondary,
		Formatting: models.ValueFormatting{
			Trim:                   true,
			StripLeadingApostrophe: true,
		},
		Role: role,
	}
}

// DefaultConventions returns the built-in naming conventions for statistical
// dataset dumps with "<Entity> Code" / "<Entity>" column pairs.
func DefaultConventions() *models.NamingConventions {
	return &models.NamingConventions{
		Entities: []models.EntityDefinition{
			codeEntity("area", "Area Code", "Area",
				[]string{"Area Code (M49)", "Area Code (ISO2)", "Area Code (ISO3)"}, models.EntityRoleEndpoint),
			codeEntity("reporter_country", "Reporter Country Code", "Reporter Countries",
				[]string{"Reporter Country Code (M49)"}, models.EntityRoleEndpoint),
			codeEntity("partner_country", "Partner Country Code", "Partner Countries",
				[]string{"Partner Country Code (M49)"}, models.EntityRoleEndpoint),
			codeEntity("donor", "Donor Code", "Donor",
				[]string{"Donor Code (M49)"}, models.EntityRoleEndpoint),
			codeEntity("recipient_country", "Recipient Country Code", "Recipient Country",
				[]string{"Recipient Country Code (M49)"}, models.EntityRoleEndpoint),
			codeEntity("item", "Item Code", "Item",
				[]string{"Item Code (CPC)", "Item Code (FBS)", "Item Code (SDG)"}, models.EntityRoleEndpoint),
			codeEntity("element", "Element Code", "Element", []string{"Unit"}, models.EntityRoleSecondary),
			codeEntity("indicator", "Indicator Code", "Indicator", nil, models.EntityRoleSecondary),
			codeEntity("food_value", "Food Value Code", "Food Value", nil, models.EntityRoleSecondary),
			codeEntity("industry", "Industry Code", "Industry", nil, models.EntityRoleSecondary),
			codeEntity("factor", "Factor Code", "Factor", nil, models.EntityRoleSecondary),
			codeEntity("purpose", "Purpose Code", "Purpose", nil, models.EntityRoleSecondary),
			codeEntity("source", "Source Code", "Source", nil, models.EntityRoleIgnored),
			codeEntity("month", "Months Code", "Months", nil, models.EntityRoleIgnored),
			codeEntity("year", "Year Code", "Year", nil, models.EntityRoleIgnored),
			codeEntity("flag", "Flag", "Flag Description", nil, models.EntityRoleIgnored),
		},
		SpecialRelationships: []models.SpecialRelationship{
			{SourceEntity: "reporter_country", TargetEntity: "partner_country", Type: "TRADES_WITH"},
			{SourceEntity: "donor", TargetEntity: "recipient_country", Type: "PROVIDES_AID_TO"},
		},
		StringColumnTokens: DefaultStringColumnTokens,
		FactFilePattern:    DefaultFactFilePattern,
	}
}

// LoadConventions reads naming conventions from a YAML file.
// An empty path returns DefaultConventions. Fields omitted from the file fall
// back to the defaults for that field.
func LoadConventions(path string) (*models.NamingConventions, error) {
	if path == "" {
		return DefaultConventions(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading conventions file: %w", err)
	}

	return ParseConventions(data)
}

// ParseConventions parses and validates a naming-convention YAML document.
func ParseConventions(data []byte) (*models.NamingConventions, error) {
	var conv models.NamingConventions
	if err := yaml.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("parsing conventions: %w", err)
	}

	defaults := DefaultConventions()
	if len(conv.Entities) == 0 {
		conv.Entities = defaults.Entities
	}
	if conv.SpecialRelationships == nil {
		conv.SpecialRelationships = defaults.SpecialRelationships
	}
	if len(conv.StringColumnTokens) == 0 {
		conv.StringColumnTokens = defaults.StringColumnTokens
	}
	if conv.FactFilePattern == "" {
		conv.FactFilePattern = defaults.FactFilePattern
	}

	if err := ValidateConventions(&conv); err != nil {
		return nil, fmt.Errorf("invalid conventions: %w", err)
	}
	return &conv, nil
}

// ValidateConventions checks entity definitions and fills default roles.
func ValidateConventions(conv *models.NamingConventions) error {
	if _, err := regexp.Compile(conv.FactFilePattern); err != nil {
		return fmt.Errorf("fact_file_pattern: %w", err)
	}

	seen := make(map[string]bool, len(conv.Entities))
	for i := range conv.Entities {
		e := &conv.Entities[i]
		e.EntityType = strings.TrimSpace(e.EntityType)
		if e.EntityType == "" {
			return fmt.Errorf("entity %d: entity_type is required", i)
		}
		if seen[e.EntityType] {
			return fmt.Errorf("entity %q defined twice", e.EntityType)
		}
		seen[e.EntityType] = true
		if len(e.PrimaryKeyNames) == 0 {
			return fmt.Errorf("entity %q: primary_key_names is required", e.EntityType)
		}
		switch e.Role {
		case "":
			e.Role = models.EntityRoleSecondary
		case models.EntityRoleEndpoint, models.EntityRoleSecondary, models.EntityRoleIgnored:
		default:
			return fmt.Errorf("entity %q: unknown role %q", e.EntityType, e.Role)
		}
		if e.Formatting.ZeroPadWidth < 0 {
			return fmt.Errorf("entity %q: zero_pad_width must not be negative", e.EntityType)
		}
	}

	for _, sr := range conv.SpecialRelationships {
		if !seen[sr.SourceEntity] || !seen[sr.TargetEntity] {
			return fmt.Errorf("special relationship %s references unknown entity (%s -> %s)",
				sr.Type, sr.SourceEntity, sr.TargetEntity)
		}
		if sr.Type == "" {
			return fmt.Errorf("special relationship %s -> %s has no type", sr.SourceEntity, sr.TargetEntity)
		}
	}
	return nil
}
