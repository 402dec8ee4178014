package models

// Column represents a database column with its properties
type Column struct {
	Name             string  `json:"name" yaml:"name"`
	DataType         string  `json:"data_type" yaml:"data_type"`
	ColumnType       string  `json:"column_type,omitempty" yaml:"column_type,omitempty"`
	CharMaxLength    *int64  `json:"char_max_length,omitempty" yaml:"char_max_length,omitempty"`
	NumericPrecision *int64  `json:"numeric_precision,omitempty" yaml:"numeric_precision,omitempty"`
	NumericScale     *int64  `json:"numeric_scale,omitempty" yaml:"numeric_scale,omitempty"`
	IsNullable       bool    `json:"nullable" yaml:"nullable"`
	ColumnKey        string  `json:"column_key,omitempty" yaml:"column_key,omitempty"`
	Extra            string  `json:"extra,omitempty" yaml:"extra,omitempty"`
	ColumnComment    string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	DefaultValue     *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// IsPrimaryKey reports whether the column is part of the declared primary key
func (c Column) IsPrimaryKey() bool {
	return c.ColumnKey == "PRI"
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	IsNullable       bool
	ConstraintName   string
}

// TableInfo describes one table of the data source together with the
// quality checks configured for its columns
type TableInfo struct {
	Name             string              `json:"table_name" yaml:"table_name"`
	DisplayName      string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	RowCount         int64               `json:"row_count" yaml:"row_count"`
	Columns          []Column            `json:"columns,omitempty" yaml:"columns,omitempty"`
	IdentifyingKey   string              `json:"identifying_key,omitempty" yaml:"identifying_key,omitempty"`
	HasConfig        bool                `json:"has_validation_config" yaml:"has_validation_config"`
	ConfiguredFields int                 `json:"configured_fields" yaml:"configured_fields"`
	ConfiguredChecks map[string][]string `json:"configured_checks,omitempty" yaml:"configured_checks,omitempty"`
}

// PopulationResult represents the result of the seeding process
type PopulationResult struct {
	SuccessfulTables []string
	FailedTables     []string
	TotalRecords     int
	InjectedDefects  int
}

// VerificationResult lists the tables holding fewer rows than expected
type VerificationResult struct {
	MinRecords int
	Empty      []string
	Short      map[string]int64
}

// OK reports whether every verified table met the minimum
func (v VerificationResult) OK() bool {
	return len(v.Empty) == 0 && len(v.Short) == 0
}

// SourceStatus describes the connected data source and the loaded rule set
type SourceStatus struct {
	Driver                string           `json:"driver" yaml:"driver"`
	Database              string           `json:"database" yaml:"database"`
	Connected             bool             `json:"connected" yaml:"connected"`
	Tables                []string         `json:"tables" yaml:"tables"`
	RowCounts             map[string]int64 `json:"table_row_counts" yaml:"table_row_counts"`
	ConfiguredTables      []string         `json:"configured_tables" yaml:"configured_tables"`
	MissingTables         []string         `json:"missing_tables,omitempty" yaml:"missing_tables,omitempty"`
	FieldConfigs          int              `json:"total_field_configs" yaml:"total_field_configs"`
	SystemCodesConfigured bool             `json:"system_codes_configured" yaml:"system_codes_configured"`
}
