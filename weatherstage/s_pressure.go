package weatherstage

import (
	"context"

	"github.com/XANi/weatherstage/queue"
)

const defaultUnitPressure = "hpa"

// SetPressure updates both absolute and relative pressure from the same reading,
// there is only one pressure sensor configured.
func (p *Publisher) SetPressure(ctx context.Context, ev queue.StateChangedEvent) error {
	p.checkDeviceClass(ev, queue.DeviceClassPressure, queue.DeviceClassAtmosphericPressure)
	return p.update(ctx, ev, ChannelPressureAbsolute, ChannelPressureRelative)
}
