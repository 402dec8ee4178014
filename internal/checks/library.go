package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

// Value is one non-blank field value together with the identifying key of
// its record
type Value struct {
	Key   string
	Value string
}

// Group is a value shared by more than one record
type Group struct {
	Value string
	Count int64
	Keys  []string
}

// Data gives the validators read access to the records of one field.
// Implementations are expected to memoise, several checks read the same scan.
type Data interface {
	// NullKeys returns the keys of records whose value is NULL
	NullKeys(ctx context.Context) ([]string, error)
	// BlankKeys returns the keys of records whose value is the empty string
	BlankKeys(ctx context.Context) ([]string, error)
	// Values returns every non-NULL, non-blank value ordered by key
	Values(ctx context.Context) ([]Value, error)
	// DuplicateGroups returns the values held by more than one record
	DuplicateGroups(ctx context.Context) ([]Group, error)
}

// Field is the subject of a check
type Field struct {
	Table      string
	Name       string
	KeyColumn  string
	TotalRows  int64
	ValidCodes []string
	Limits     Limits
	Data       Data
}

type outcome struct {
	status  models.Status
	message string
	details []models.Detail
}

func pass(format string, args ...interface{}) *outcome {
	return &outcome{status: models.StatusPass, message: fmt.Sprintf(format, args...)}
}

func fail(details []models.Detail, format string, args ...interface{}) *outcome {
	return &outcome{status: models.StatusFail, message: fmt.Sprintf(format, args...), details: details}
}

// Spec binds a check kind to its validator and the severity of its failures
type Spec struct {
	Kind     Kind
	Severity models.Severity
	run      func(ctx context.Context, f *Field) (*outcome, error)
}

// Run applies the check to a field. A nil finding with a nil error means the
// check has nothing to report for this field.
func (s Spec) Run(ctx context.Context, f *Field) (*models.Finding, error) {
	if s.run == nil {
		return nil, errors.Errorf("no validator registered for %s", s.Kind)
	}
	out, err := s.run(ctx, f)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s failed on %s.%s", s.Kind, f.Table, f.Name)
	}
	if out == nil {
		return nil, nil
	}

	finding := &models.Finding{
		Table:     f.Table,
		Field:     f.Name,
		CheckType: s.Kind.String(),
		Status:    out.status,
		Message:   out.message,
		KeyColumn: f.KeyColumn,
		Severity:  models.SeverityInfo,
	}
	if out.status != models.StatusPass {
		finding.Severity = s.Severity
		finding.MoreDetails = out.details
	}
	return finding, nil
}

var library = [kindCount]Spec{
	NullCheck:              {Kind: NullCheck, Severity: models.SeverityHigh, run: checkNull},
	BlankCheck:             {Kind: BlankCheck, Severity: models.SeverityMedium, run: checkBlank},
	EmailCheck:             {Kind: EmailCheck, Severity: models.SeverityMedium, run: checkEmail},
	PhoneNumberCheck:       {Kind: PhoneNumberCheck, Severity: models.SeverityMedium, run: checkPhone},
	DuplicateCheck:         {Kind: DuplicateCheck, Severity: models.SeverityMedium, run: checkDuplicates},
	NumericCheck:           {Kind: NumericCheck, Severity: models.SeverityMedium, run: checkNumeric},
	DateCheck:              {Kind: DateCheck, Severity: models.SeverityHigh, run: checkDate},
	SystemCodesCheck:       {Kind: SystemCodesCheck, Severity: models.SeverityHigh, run: checkSystemCodes},
	SpecialCharactersCheck: {Kind: SpecialCharactersCheck, Severity: models.SeverityLow, run: checkSpecialCharacters},
	MaxValueCheck:          {Kind: MaxValueCheck, Severity: models.SeverityMedium, run: checkMaxValue},
	MinValueCheck:          {Kind: MinValueCheck, Severity: models.SeverityMedium, run: checkMinValue},
	MaxCountCheck:          {Kind: MaxCountCheck, Severity: models.SeverityLow, run: checkMaxCount},
	LanguageCheck:          {Kind: LanguageCheck, Severity: models.SeverityLow, run: checkLanguage},
}

// Lookup returns the validator bound to k
func Lookup(k Kind) (Spec, bool) {
	if k < 0 || k >= kindCount {
		return Spec{}, false
	}
	return library[k], true
}

func checkNull(ctx context.Context, f *Field) (*outcome, error) {
	keys, err := f.Data.NullKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return pass("No NULL values found in %d rows", f.TotalRows), nil
	}
	details := make([]models.Detail, 0, len(keys))
	for _, key := range keys {
		details = append(details, models.Detail{Key: key, Value: "NULL"})
	}
	return fail(details, "Found %d NULL values out of %d total rows", len(keys), f.TotalRows), nil
}

func checkBlank(ctx context.Context, f *Field) (*outcome, error) {
	keys, err := f.Data.BlankKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return pass("No blank values found in %d rows", f.TotalRows), nil
	}
	details := make([]models.Detail, 0, len(keys))
	for _, key := range keys {
		details = append(details, models.Detail{Key: key, Value: "BLANK"})
	}
	return fail(details, "Found %d blank values out of %d total rows", len(keys), f.TotalRows), nil
}

func checkDuplicates(ctx context.Context, f *Field) (*outcome, error) {
	groups, err := f.Data.DuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return pass("No duplicate values found in %d rows", f.TotalRows), nil
	}
	var affected int64
	details := make([]models.Detail, 0, len(groups))
	for _, g := range groups {
		affected += g.Count
		details = append(details, models.Detail{Value: g.Value, Count: g.Count, Keys: g.Keys})
	}
	return fail(details, "Found %d duplicate values affecting %d records", len(groups), affected), nil
}

func checkMaxCount(_ context.Context, f *Field) (*outcome, error) {
	limit := f.Limits.MaxRowCount
	if f.TotalRows > limit {
		return fail([]models.Detail{{Count: f.TotalRows, Limit: limit, Note: "table " + f.Table}},
			"Table has %d rows, exceeding max count threshold of %d", f.TotalRows, limit), nil
	}
	return pass("Table row count (%d) is within max count threshold of %d", f.TotalRows, limit), nil
}

// valueRule describes a check that flags individual non-blank values
type valueRule struct {
	passMsg string // formatted with the number of values
	failMsg string // formatted with the violations and the number of values
	flag    func(v Value) (models.Detail, bool)
}

func (r valueRule) apply(ctx context.Context, f *Field) (*outcome, error) {
	values, err := f.Data.Values(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return pass("No non-blank values to validate"), nil
	}
	var details []models.Detail
	for _, v := range values {
		if d, bad := r.flag(v); bad {
			details = append(details, d)
		}
	}
	if len(details) == 0 {
		return pass(r.passMsg, len(values)), nil
	}
	return fail(details, r.failMsg, len(details), len(values)), nil
}

func checkEmail(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "All %d email values have valid format",
		failMsg: "Found %d invalid email formats out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			s := strings.TrimSpace(v.Value)
			return models.Detail{Key: v.Key, Value: s}, !IsValidEmail(s)
		},
	}.apply(ctx, f)
}

func checkPhone(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "All %d phone numbers have valid format",
		failMsg: "Found %d invalid phone number formats out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			s := strings.TrimSpace(v.Value)
			return models.Detail{Key: v.Key, Value: s}, !IsValidPhone(s)
		},
	}.apply(ctx, f)
}

func checkNumeric(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "All %d values are valid numbers",
		failMsg: "Found %d non-numeric values out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			s := strings.TrimSpace(v.Value)
			return models.Detail{Key: v.Key, Value: s}, !IsNumeric(s)
		},
	}.apply(ctx, f)
}

func checkDate(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "All %d values are valid dates",
		failMsg: "Found %d invalid date formats out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			s := strings.TrimSpace(v.Value)
			return models.Detail{Key: v.Key, Value: s}, !IsValidDate(s)
		},
	}.apply(ctx, f)
}

func checkSystemCodes(ctx context.Context, f *Field) (*outcome, error) {
	if len(f.ValidCodes) == 0 {
		return nil, nil
	}
	valid := make(map[string]struct{}, len(f.ValidCodes))
	for _, code := range f.ValidCodes {
		valid[code] = struct{}{}
	}
	note := "valid codes: " + CodesPreview(f.ValidCodes)

	return valueRule{
		passMsg: "All %d values are valid system codes",
		failMsg: "Found %d invalid system codes out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			s := strings.TrimSpace(v.Value)
			_, ok := valid[s]
			return models.Detail{Key: v.Key, Value: s, Note: note}, !ok
		},
	}.apply(ctx, f)
}

func checkSpecialCharacters(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "No special characters found in %d values",
		failMsg: "Found %d values with special characters out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			return models.Detail{Key: v.Key, Value: Truncate(v.Value, 20)}, HasSpecialCharacters(v.Value)
		},
	}.apply(ctx, f)
}

func checkMaxValue(ctx context.Context, f *Field) (*outcome, error) {
	limit := f.Limits.MaxLength
	return valueRule{
		passMsg: "All %d values are within max length (" + fmt.Sprint(limit) + ")",
		failMsg: "Found %d values exceeding max length (" + fmt.Sprint(limit) + ") out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			n := Length(v.Value)
			return models.Detail{Key: v.Key, Value: Truncate(v.Value, 30), Length: n, Limit: int64(limit)}, n > limit
		},
	}.apply(ctx, f)
}

func checkMinValue(ctx context.Context, f *Field) (*outcome, error) {
	limit := f.Limits.MinLength
	return valueRule{
		passMsg: "All %d values meet min length (" + fmt.Sprint(limit) + ")",
		failMsg: "Found %d values below min length (" + fmt.Sprint(limit) + ") out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			n := Length(v.Value)
			return models.Detail{Key: v.Key, Value: v.Value, Length: n, Limit: int64(limit)}, n < limit
		},
	}.apply(ctx, f)
}

func checkLanguage(ctx context.Context, f *Field) (*outcome, error) {
	return valueRule{
		passMsg: "All %d values contain only ASCII characters",
		failMsg: "Found %d values with non-ASCII characters out of %d values",
		flag: func(v Value) (models.Detail, bool) {
			return models.Detail{Key: v.Key, Value: Truncate(v.Value, 30)}, !IsASCII(v.Value)
		},
	}.apply(ctx, f)
}

// CodesPreview lists the first three codes and the total when there are more
func CodesPreview(codes []string) string {
	if len(codes) <= 3 {
		return strings.Join(codes, ", ")
	}
	return fmt.Sprintf("%s... (%d total)", strings.Join(codes[:3], ", "), len(codes))
}
