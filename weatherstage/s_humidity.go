package weatherstage

import (
	"context"

	"github.com/XANi/weatherstage/queue"
)

const defaultUnitHumidity = "%"

func (p *Publisher) SetHumidity(ctx context.Context, ev queue.StateChangedEvent) error {
	p.checkDeviceClass(ev, queue.DeviceClassHumidity)
	return p.update(ctx, ev, ChannelHumidity)
}
