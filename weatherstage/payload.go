package weatherstage

const (
	Model   = "Home Assistant Integration"
	Version = "0.0.1"
)

type Channel string

const (
	ChannelTemperature      Channel = "temperature"
	ChannelHumidity         Channel = "humidity"
	ChannelPressureAbsolute Channel = "barometric_pressure_absolute"
	ChannelPressureRelative Channel = "barometric_pressure_relative"
)

// Measurement is a single channel. Value is nil until first event arrives
type Measurement struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

type Payload struct {
	Model            string      `json:"model"`
	Version          string      `json:"version"`
	Temperature      Measurement `json:"temperature"`
	Humidity         Measurement `json:"humidity"`
	PressureAbsolute Measurement `json:"barometric_pressure_absolute"`
	PressureRelative Measurement `json:"barometric_pressure_relative"`
}

func NewPayload() Payload {
	return Payload{
		Model:            Model,
		Version:          Version,
		Temperature:      Measurement{Unit: defaultUnitTemperature},
		Humidity:         Measurement{Unit: defaultUnitHumidity},
		PressureAbsolute: Measurement{Unit: defaultUnitPressure},
		PressureRelative: Measurement{Unit: defaultUnitPressure},
	}
}

func (m Measurement) clone() Measurement {
	if m.Value != nil {
		v := *m.Value
		m.Value = &v
	}
	return m
}

// Clone returns deep copy, safe to use after the original is modified
func (p Payload) Clone() Payload {
	p.Temperature = p.Temperature.clone()
	p.Humidity = p.Humidity.clone()
	p.PressureAbsolute = p.PressureAbsolute.clone()
	p.PressureRelative = p.PressureRelative.clone()
	return p
}

// Complete reports whether every channel has a value
func (p Payload) Complete() bool {
	return p.Temperature.Value != nil &&
		p.Humidity.Value != nil &&
		p.PressureAbsolute.Value != nil &&
		p.PressureRelative.Value != nil
}

func (p *Payload) measurement(ch Channel) *Measurement {
	switch ch {
	case ChannelTemperature:
		return &p.Temperature
	case ChannelHumidity:
		return &p.Humidity
	case ChannelPressureAbsolute:
		return &p.PressureAbsolute
	case ChannelPressureRelative:
		return &p.PressureRelative
	default:
		return nil
	}
}

// Measurement returns copy of given channel
func (p Payload) Measurement(ch Channel) (Measurement, bool) {
	m := p.measurement(ch)
	if m == nil {
		return Measurement{}, false
	}
	return m.clone(), true
}
