package weatherstage

// unit labels as expected by weatherstage.com API
var unitLabels = map[string]string{
	"°C":  "c",
	"°F":  "f",
	"%":   "%",
	"hPa": "hpa",
}

// NormalizeUnit maps Home Assistant unit_of_measurement to API unit label.
// Unknown units are passed through unchanged.
func NormalizeUnit(unit string) string {
	if l, ok := unitLabels[unit]; ok {
		return l
	}
	return unit
}
