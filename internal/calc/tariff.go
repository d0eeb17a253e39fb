package calc

import (
	"fmt"
	"strconv"
	"strings"
)

// TariffSource resolves a monthly full-time gross salary for a pay grade and
// experience Stufe. Sources can be backed by static tables or by uploaded
// tariff documents; the engine tries them in order and tolerates any single
// source failing.
type TariffSource interface {
	GrossSalary(tarif, group string, stufe int) (float64, error)
}

// StaticTariffTable holds the built-in pay tables. Values are monthly gross
// in euros at full-time hours. TV-L and AVR track the TVöD tables closely
// enough that they share them here; a document-backed source can override
// per tenant.
type StaticTariffTable struct{}

func NewStaticTariffTable() *StaticTariffTable {
	return &StaticTariffTable{}
}

// eTable: general pay grades E1-E15, Stufen 1-6. E1 has no Stufe 1; the
// Stufe 2 value is carried in its place.
var eTable = map[int][6]float64{
	1:  {2356, 2356, 2398, 2452, 2500, 2620},
	2:  {2582, 2694, 2748, 2802, 2941, 3099},
	3:  {2663, 2800, 2880, 2994, 3082, 3158},
	4:  {2717, 2867, 3032, 3128, 3223, 3281},
	5:  {2829, 2986, 3114, 3244, 3346, 3415},
	6:  {2929, 3072, 3196, 3332, 3420, 3514},
	7:  {3096, 3261, 3429, 3564, 3670, 3773},
	8:  {3282, 3450, 3584, 3714, 3857, 3945},
	9:  {3520, 3697, 3814, 4050, 4178, 4318},
	10: {3896, 4121, 4410, 4703, 5012, 5134},
	11: {4064, 4306, 4572, 5003, 5329, 5576},
	12: {4193, 4489, 5035, 5504, 5898, 6182},
	13: {4628, 4985, 5392, 5834, 6353, 6635},
	14: {5003, 5329, 5755, 6227, 6754, 7132},
	15: {5504, 5863, 6265, 6813, 7377, 7748},
}

// pTable: care pay grades P5-P16, Stufen 1-6.
var pTable = map[int][6]float64{
	5:  {2932, 3013, 3116, 3230, 3325, 3424},
	6:  {2964, 3082, 3197, 3332, 3436, 3546},
	7:  {3304, 3417, 3556, 3702, 3825, 3954},
	8:  {3490, 3582, 3712, 3864, 4001, 4137},
	9:  {3580, 3700, 3832, 4005, 4152, 4306},
	10: {3702, 3856, 4014, 4202, 4368, 4542},
	11: {3874, 4066, 4254, 4472, 4662, 4862},
	12: {4012, 4234, 4452, 4702, 4912, 5132},
	13: {4210, 4452, 4692, 4972, 5212, 5462},
	14: {4462, 4732, 5002, 5322, 5592, 5882},
	15: {4762, 5062, 5372, 5732, 6042, 6372},
	16: {5112, 5452, 5802, 6212, 6562, 6932},
}

// splitGroup parses a canonical grade like "e9" or "p7".
func splitGroup(group string) (prefix string, n int, err error) {
	g := strings.ToLower(strings.TrimSpace(group))
	if len(g) < 2 {
		return "", 0, fmt.Errorf("malformed pay grade %q", group)
	}
	prefix = g[:1]
	n, convErr := strconv.Atoi(g[1:])
	if convErr != nil {
		return "", 0, fmt.Errorf("malformed pay grade %q", group)
	}
	return prefix, n, nil
}

func (t *StaticTariffTable) GrossSalary(tarif, group string, stufe int) (float64, error) {
	if stufe < 1 || stufe > 6 {
		return 0, fmt.Errorf("stufe %d out of range", stufe)
	}
	prefix, n, err := splitGroup(group)
	if err != nil {
		return 0, err
	}

	var table map[int][6]float64
	switch prefix {
	case "e":
		table = eTable
	case "p":
		table = pTable
	default:
		return 0, fmt.Errorf("unknown pay grade table %q", prefix)
	}

	row, ok := table[n]
	if !ok {
		return 0, fmt.Errorf("no pay table entry for grade %s", group)
	}
	return row[stufe-1], nil
}

// ChainedTariffSource tries each source in order, returning the first
// success. Used to let a document-backed lookup fall back to the static
// tables and vice versa.
type ChainedTariffSource struct {
	sources []TariffSource
}

func NewChainedTariffSource(sources ...TariffSource) *ChainedTariffSource {
	return &ChainedTariffSource{sources: sources}
}

func (c *ChainedTariffSource) GrossSalary(tarif, group string, stufe int) (float64, error) {
	var lastErr error
	for _, s := range c.sources {
		gross, err := s.GrossSalary(tarif, group, stufe)
		if err == nil {
			return gross, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no tariff sources configured")
	}
	return 0, fmt.Errorf("tariff lookup: %w", lastErr)
}
