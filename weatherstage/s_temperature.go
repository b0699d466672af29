package weatherstage

import (
	"context"

	"github.com/XANi/weatherstage/queue"
)

const defaultUnitTemperature = "c"

// SetTemperature is handler for temperature entity changes
func (p *Publisher) SetTemperature(ctx context.Context, ev queue.StateChangedEvent) error {
	p.checkDeviceClass(ev, queue.DeviceClassTemperature)
	return p.update(ctx, ev, ChannelTemperature)
}
