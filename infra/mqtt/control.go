package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/logger"
)

// ControlListener is an auction.TargetSource fed by control messages such as
//
//	{"ctrl_mode": "reference", "target": 1500}
//
// published on the control topic of a commodity. Each message applies to the
// next interval only.
type ControlListener struct {
	box *auction.OverrideBox
	log logger.Logger
}

var _ auction.TargetSource = (*ControlListener)(nil)

// NewControlListener subscribes to the market control topics of the
// commodities.
func NewControlListener(cli *PahoClient, commodities []model.Commodity) (*ControlListener, error) {
	return newControlListener(cli, commodities, cli.Topics().Control)
}

// NewNodeControlListener subscribes to the control topics of an islanded
// node, whose targets are set independently of the market.
func NewNodeControlListener(cli *PahoClient, node string, commodities []model.Commodity) (*ControlListener, error) {
	return newControlListener(cli, commodities, func(c model.Commodity) string {
		return cli.Topics().NodeControl(node, c)
	})
}

func newControlListener(cli *PahoClient, commodities []model.Commodity, topic func(model.Commodity) string) (*ControlListener, error) {
	l := &ControlListener{box: auction.NewOverrideBox(), log: logger.New("mqtt_control")}
	for _, c := range commodities {
		if err := cli.Subscribe(topic(c), "control", l.handler(c)); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *ControlListener) handler(c model.Commodity) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		o, err := decodeOverride(msg.Payload())
		if err != nil {
			l.log.Errorf("control %s: %v", c, err)
			return
		}
		l.box.Set(c, o)
		l.log.Infof("control override for %s: mode=%q target=%v", c, o.Mode, o.Target)
	}
}

func decodeOverride(payload []byte) (auction.Override, error) {
	var o auction.Override
	if err := json.Unmarshal(payload, &o); err != nil {
		return auction.Override{}, fmt.Errorf("decode: %w", err)
	}
	if o.Mode != "" {
		m, err := auction.ParseTargetMode(string(o.Mode))
		if err != nil {
			return auction.Override{}, err
		}
		o.Mode = m
	}
	if o.Mode == "" && o.Target == nil {
		return auction.Override{}, fmt.Errorf("empty override")
	}
	return o, nil
}

// TakeOverride returns and clears the pending override of c.
func (l *ControlListener) TakeOverride(c model.Commodity) (auction.Override, bool) {
	return l.box.TakeOverride(c)
}
