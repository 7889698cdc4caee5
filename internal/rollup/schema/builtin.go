package schema

import (
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// BuiltinSpecs returns the compiled-in source schemas, one per types.BuiltinSourceTypes.
func BuiltinSpecs() []Spec {
	return []Spec{vulnerabilitySpec(), complianceSpec()}
}

// Scanner findings keyed by line of business, application and asset placement.
func vulnerabilitySpec() Spec {
	return Spec{
		SourceType: types.SourceVulnerability,
		Identity: []Field{
			{Name: "org_unit", Source: "lob_name"},
			{Name: "app_id", Source: "app_id"},
			{Name: "asset_category", Source: "asset_category"},
			{Name: "os", Source: "operating_system"},
			{Name: "region", Source: "region"},
		},
		Header: []Field{
			{Name: "app_name", Source: "app_name"},
			{Name: "app_owner", Source: "app_owner_name"},
			{Name: "app_owner_email", Source: "app_owner_email"},
			{Name: "tech_owner", Source: "tech_owner_name"},
			{Name: "tech_owner_email", Source: "tech_owner_email"},
			{Name: "network_zone", Source: "network_zone"},
			{Name: "environment", Source: "environment"},
			{Name: "scan_date", Source: "scan_date", Kind: KindDate},
		},
		Item: ItemSpec{
			Key: Field{Name: "finding_name", Source: "finding_name"},
			Fields: []Field{
				{Name: "finding_id", Source: "plugin_id"},
				{Name: "description", Source: "description"},
				{Name: "solution", Source: "solution"},
				{Name: "cve", Source: "cve"},
				{Name: "cvss_score", Source: "cvss_score", Kind: KindFloat},
				{Name: "first_discovered", Source: "first_discovered", Kind: KindDate},
				{Name: "last_observed", Source: "last_observed", Kind: KindDate},
			},
		},
		Category: Field{Name: "severity", Source: "severity"},
	}
}

// Control test results keyed by line of business, application and region.
func complianceSpec() Spec {
	return Spec{
		SourceType: types.SourceCompliance,
		Identity: []Field{
			{Name: "org_unit", Source: "lob_name"},
			{Name: "app_id", Source: "app_id"},
			{Name: "region", Source: "region"},
		},
		Header: []Field{
			{Name: "app_name", Source: "app_name"},
			{Name: "control_owner", Source: "control_owner_name"},
			{Name: "control_owner_email", Source: "control_owner_email"},
			{Name: "framework", Source: "framework"},
			{Name: "assessed_on", Source: "assessment_date", Kind: KindDate},
		},
		Item: ItemSpec{
			Key: Field{Name: "control_id", Source: "control_id"},
			Fields: []Field{
				{Name: "control_title", Source: "control_title"},
				{Name: "status", Source: "status"},
				{Name: "evidence_due", Source: "evidence_due", Kind: KindDate},
				{Name: "automated", Source: "automated", Kind: KindBool},
			},
		},
		Category: Field{Name: "priority", Source: "priority"},
	}
}
