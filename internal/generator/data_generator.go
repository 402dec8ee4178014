package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

// Defect names a kind of bad value planted in a text column
type Defect string

const (
	DefectNull     Defect = "null"
	DefectBlank    Defect = "blank"
	DefectEmail    Defect = "malformed_email"
	DefectPhone    Defect = "malformed_phone"
	DefectDate     Defect = "impossible_date"
	DefectNonASCII Defect = "non_ascii"
	DefectSpecial  Defect = "special_characters"
)

var (
	enumPattern  = regexp.MustCompile(`(?i)enum\((.+)\)`)
	quotedValue  = regexp.MustCompile(`'([^']*)'`)
	nonASCIIText = []string{"Müller", "Søren Ødegård", "Łódź", "José Peña", "Çelik", "Straße"}
	textTypes    = map[string]bool{
		"": true, "char": true, "varchar": true, "nchar": true, "nvarchar": true,
		"text": true, "tinytext": true, "mediumtext": true, "longtext": true,
		"ntext": true, "clob": true, "character": true,
	}
)

// nameRule produces a value for columns whose lowercase name contains one of
// the given fragments
type nameRule struct {
	fragments []string
	generate  func(f faker.Faker) string
}

var nameRules = []nameRule{
	{[]string{"email"}, func(f faker.Faker) string { return f.Internet().Email() }},
	{[]string{"phone", "fax", "mobile"}, func(f faker.Faker) string { return f.Phone().Number() }},
	{[]string{"company", "business"}, func(f faker.Faker) string { return f.Company().Name() }},
	{[]string{"firstname", "first_name"}, func(f faker.Faker) string { return f.Person().FirstName() }},
	{[]string{"lastname", "last_name"}, func(f faker.Faker) string { return f.Person().LastName() }},
	{[]string{"title"}, func(f faker.Faker) string { return f.Company().JobTitle() }},
	{[]string{"username", "user_name", "login"}, func(f faker.Faker) string { return f.Internet().User() }},
	{[]string{"name"}, func(f faker.Faker) string { return f.Person().Name() }},
	{[]string{"address", "street"}, func(f faker.Faker) string { return f.Address().StreetAddress() }},
	{[]string{"city"}, func(f faker.Faker) string { return f.Address().City() }},
	{[]string{"region", "state"}, func(f faker.Faker) string { return f.Address().State() }},
	{[]string{"country"}, func(f faker.Faker) string { return f.Address().Country() }},
	{[]string{"postal", "zip"}, func(f faker.Faker) string { return f.Address().PostCode() }},
	{[]string{"url", "website", "homepage"}, func(f faker.Faker) string { return f.Internet().URL() }},
	{[]string{"uuid", "guid"}, func(f faker.Faker) string { return f.UUID().V4() }},
	{[]string{"description", "notes", "comment"}, func(f faker.Faker) string { return f.Lorem().Sentence(8) }},
}

// DataGenerator generates fake column values and plants defects in a share
// of the text values so a quality run has something to report
type DataGenerator struct {
	Faker      faker.Faker
	DefectRate float64
	Injected   map[Defect]int
	Logger     *logrus.Logger

	rnd *rand.Rand
}

// NewDataGenerator creates a generator seeded from the clock
func NewDataGenerator(defectRate float64, logger *logrus.Logger) *DataGenerator {
	return NewSeededDataGenerator(time.Now().UnixNano(), defectRate, logger)
}

// NewSeededDataGenerator creates a generator producing a reproducible sequence
func NewSeededDataGenerator(seed int64, defectRate float64, logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:      faker.NewWithSeed(rand.NewSource(seed)),
		DefectRate: defectRate,
		Injected:   make(map[Defect]int),
		Logger:     logger,
		rnd:        rand.New(rand.NewSource(seed + 1)),
	}
}

// InjectedTotal returns the number of defects planted so far
func (dg *DataGenerator) InjectedTotal() int {
	total := 0
	for _, n := range dg.Injected {
		total += n
	}
	return total
}

// GenerateData generates a value for a column of table
func (dg *DataGenerator) GenerateData(table string, column models.Column) interface{} {
	value := dg.generate(column)

	if dg.DefectRate <= 0 || column.IsPrimaryKey() || !IsText(column) {
		return value
	}
	if dg.rnd.Float64() >= dg.DefectRate {
		return value
	}

	defect, bad := dg.defect(column)
	dg.Injected[defect]++
	dg.Logger.WithFields(logrus.Fields{"table": table, "column": column.Name}).
		Debugf("Injected %s defect", defect)
	if bad == nil {
		return nil
	}
	return fit(bad.(string), column)
}

// IsText reports whether a column stores free text
func IsText(column models.Column) bool {
	return textTypes[strings.ToLower(column.DataType)]
}

func (dg *DataGenerator) generate(column models.Column) interface{} {
	dataType := strings.ToLower(column.DataType)

	if IsText(column) {
		if column.IsPrimaryKey() {
			return dg.generateKey(column)
		}
		name := strings.ToLower(column.Name)
		for _, rule := range nameRules {
			for _, fragment := range rule.fragments {
				if strings.Contains(name, fragment) {
					return fit(rule.generate(dg.Faker), column)
				}
			}
		}
		if strings.Contains(name, "date") {
			return dg.generateDate().Format("2006-01-02")
		}
		return dg.generateString(column)
	}

	switch dataType {
	case "int", "integer", "tinyint", "smallint", "mediumint", "bigint":
		return dg.generateInteger(column)
	case "float", "double", "decimal", "real", "numeric":
		return dg.generateFloat(column)
	case "date":
		return dg.generateDate().Format("2006-01-02")
	case "datetime", "timestamp":
		return dg.generateDate().Add(time.Duration(dg.rnd.Int63n(int64(24 * time.Hour)))).Format("2006-01-02 15:04:05")
	case "time":
		return fmt.Sprintf("%02d:%02d:%02d", dg.rnd.Intn(24), dg.rnd.Intn(60), dg.rnd.Intn(60))
	case "year":
		return 1970 + dg.rnd.Intn(time.Now().Year()-1970+1)
	case "enum":
		return dg.generateEnum(column)
	case "boolean", "bool":
		return dg.rnd.Intn(2) == 1
	case "json":
		return dg.generateJSON()
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return dg.generateBytes(column)
	default:
		dg.Logger.Warningf("No specific generator for type %s, using default string", dataType)
		return fit(dg.Faker.Lorem().Word(), column)
	}
}

// defect picks a bad value that fits the column; a nil value means NULL
func (dg *DataGenerator) defect(column models.Column) (Defect, interface{}) {
	name := strings.ToLower(column.Name)

	var candidates []Defect
	if column.IsNullable {
		candidates = append(candidates, DefectNull)
	}
	candidates = append(candidates, DefectBlank, DefectNonASCII, DefectSpecial)
	switch {
	case strings.Contains(name, "email"):
		candidates = append(candidates, DefectEmail, DefectEmail)
	case strings.Contains(name, "phone") || strings.Contains(name, "fax"):
		candidates = append(candidates, DefectPhone, DefectPhone)
	case strings.Contains(name, "date"):
		candidates = append(candidates, DefectDate, DefectDate)
	}

	defect := candidates[dg.rnd.Intn(len(candidates))]
	switch defect {
	case DefectNull:
		return defect, nil
	case DefectBlank:
		return defect, ""
	case DefectEmail:
		return defect, strings.ToLower(dg.Faker.Person().FirstName()) + "@@example"
	case DefectPhone:
		return defect, fmt.Sprintf("%d-%d", 10+dg.rnd.Intn(90), 10+dg.rnd.Intn(90))
	case DefectDate:
		return defect, fmt.Sprintf("%d-13-45", 2000+dg.rnd.Intn(25))
	case DefectNonASCII:
		return defect, nonASCIIText[dg.rnd.Intn(len(nonASCIIText))]
	default:
		return DefectSpecial, dg.Faker.Lorem().Word() + "#!"
	}
}

// generateKey produces an upper-case key that fits the column width
func (dg *DataGenerator) generateKey(column models.Column) string {
	length := 8
	if column.CharMaxLength != nil && *column.CharMaxLength < int64(length) {
		length = int(*column.CharMaxLength)
	}
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	key := make([]byte, length)
	for i := range key {
		key[i] = letters[dg.rnd.Intn(len(letters))]
	}
	return string(key)
}

// generateString produces lorem text no longer than the column allows
func (dg *DataGenerator) generateString(column models.Column) string {
	limit := int64(100)
	if column.CharMaxLength != nil && *column.CharMaxLength < limit {
		limit = *column.CharMaxLength
	}

	var value string
	switch {
	case limit <= 5:
		value = dg.Faker.RandomStringWithLength(int(limit))
	case limit <= 20:
		value = dg.Faker.Lorem().Word()
	default:
		value = dg.Faker.Lorem().Sentence(1 + int(limit/20))
	}
	return fit(value, column)
}

func (dg *DataGenerator) generateInteger(column models.Column) interface{} {
	columnType := strings.ToLower(column.ColumnType)
	if strings.Contains(columnType, "tinyint(1)") {
		return dg.rnd.Intn(2)
	}
	unsigned := strings.Contains(columnType, "unsigned")

	switch strings.ToLower(column.DataType) {
	case "tinyint":
		if unsigned {
			return dg.rnd.Intn(256)
		}
		return dg.rnd.Intn(128)
	case "smallint":
		return dg.rnd.Intn(32768)
	default:
		return 1 + dg.rnd.Intn(100000)
	}
}

func (dg *DataGenerator) generateFloat(column models.Column) float64 {
	value := dg.rnd.Float64() * 1000
	scale := int64(2)
	if column.NumericScale != nil {
		scale = *column.NumericScale
	}
	multiplier := math.Pow(10, float64(scale))
	return math.Trunc(value*multiplier) / multiplier
}

// generateDate returns a day within the last five years
func (dg *DataGenerator) generateDate() time.Time {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -dg.rnd.Intn(365*5))
}

func (dg *DataGenerator) generateEnum(column models.Column) string {
	matches := enumPattern.FindStringSubmatch(column.ColumnType)
	if len(matches) < 2 {
		return ""
	}

	var values []string
	for _, match := range quotedValue.FindAllStringSubmatch(matches[1], -1) {
		values = append(values, match[1])
	}
	if len(values) == 0 {
		return ""
	}
	return values[dg.rnd.Intn(len(values))]
}

func (dg *DataGenerator) generateJSON() string {
	data := map[string]interface{}{
		"id":      dg.rnd.Intn(1000),
		"name":    dg.Faker.Lorem().Word(),
		"enabled": dg.rnd.Intn(2) == 1,
	}
	out, err := json.Marshal(data)
	if err != nil {
		dg.Logger.Errorf("Error generating JSON: %v", err)
		return "{}"
	}
	return string(out)
}

func (dg *DataGenerator) generateBytes(column models.Column) []byte {
	length := int64(16)
	if column.CharMaxLength != nil && *column.CharMaxLength < length {
		length = *column.CharMaxLength
	}
	data := make([]byte, length)
	dg.rnd.Read(data)
	return data
}

// fit cuts a value to the declared character width of the column
func fit(value string, column models.Column) string {
	if column.CharMaxLength == nil {
		return value
	}
	limit := int(*column.CharMaxLength)
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
