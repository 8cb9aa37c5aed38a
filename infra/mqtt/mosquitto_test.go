package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/gridmarket/core/model"
)

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// simulatedDevice publishes a retained state report and acknowledges every
// command it receives.
func simulatedDevice(t *testing.T, broker, id string) paho.Client {
	t.Helper()
	topics := Topics{Prefix: "gridmarket"}
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("sim-" + id))
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		t.Skipf("connect: %v", token.Error())
	}
	state, _ := json.Marshal(StateReport{
		Timestamp:   time.Now(),
		Consumption: map[string]Power{"ELECTRICITY": {Active: 400}},
	})
	cli.Publish(topics.DeviceState(id), 1, true, state).Wait()
	token := cli.Subscribe(topics.DeviceCommand(id), 1, func(c paho.Client, m paho.Message) {
		var cmd Command
		_ = json.Unmarshal(m.Payload(), &cmd)
		ack, _ := json.Marshal(map[string]string{"command_id": cmd.CommandID})
		c.Publish(fmt.Sprintf("gridmarket/device/%s/ack", id), 1, false, ack)
	})
	if token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}
	return cli
}

func TestRemoteDeviceWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	if os.Getenv("DOCKER_AVAILABLE") == "" {
		t.Skip("DOCKER_AVAILABLE not set")
	}
	ctx := context.Background()
	broker := startMosquitto(ctx, t)

	sim := simulatedDevice(t, broker, "ev1")
	defer sim.Disconnect(100)

	cli, err := NewPahoClient(Config{Broker: broker, ClientID: "market", QoS: map[string]byte{"command": 1, "ack": 1, "state": 1}})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer cli.Disconnect()
	d, err := NewRemoteDevice(cli, "ev1")
	if err != nil {
		t.Fatalf("device: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := d.Sync(ctx)
		if err == nil {
			if real(s.Consumption[model.Electricity]) != 400 {
				t.Fatalf("unexpected state %+v", s)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no state received: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := d.SetPlan(ctx, model.Plan{model.Electricity: {{Timestamp: time.Now(), Power: 1000}}}); err != nil {
		t.Fatalf("set plan: %v", err)
	}
}
