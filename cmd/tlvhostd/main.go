// Command tlvhostd is a host-side demo daemon: it opens a serial port,
// decodes TVLCOM frames over it, dispatches the records to a handful of
// sample handlers, publishes everything to Redis, and replies with
// ACK/NACK according to the protocol's policy. It mirrors the shape of
// the teacher's cmd/bluetooth-service/main.go: flag-driven
// configuration, sequential wiring, signal-triggered shutdown.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uf4over/tvlcom/pkg/dispatch"
	"github.com/uf4over/tvlcom/pkg/frame"
	"github.com/uf4over/tvlcom/pkg/hal"
	"github.com/uf4over/tvlcom/pkg/serialio"
	"github.com/uf4over/tvlcom/pkg/telemetry"
	"github.com/uf4over/tvlcom/pkg/tlv"
	"github.com/uf4over/tvlcom/pkg/transport"
)

var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting tlvhostd")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Baud rate: %d", *baudRate)
	log.Printf("Redis address: %s", *redisAddr)

	caps := hal.Default()

	bus, err := telemetry.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer bus.Close()
	log.Printf("Connected to Redis")

	tport := transport.New(caps)
	engine := dispatch.New(frame.UART, tport, caps)
	engine.AddObserver(bus)

	registerSampleHandlers(engine)

	parser := engine.NewParser()
	parser.Debug = true

	port, err := serialio.Open(*serialDevice, *baudRate, parser)
	if err != nil {
		log.Fatalf("Failed to open serial port: %v", err)
	}
	defer port.Close()
	log.Printf("Opened %s at %d baud", *serialDevice, *baudRate)

	tport.RegisterSender(frame.UART, port.Sender())

	log.Printf("Dispatch engine ready, awaiting frames")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Printf("Shutting down...")
}

// registerSampleHandlers wires a minimal demo policy: acknowledge any
// CONTROL_CMD whose command byte is known, log the VBUS/IBUS/PBUS/TEMP
// scaled-float measurements, and log raw strings.
func registerSampleHandlers(engine *dispatch.Engine) {
	const cmdPing byte = 0x01

	engine.RegisterCmdHandler(cmdPing, func(cmd byte, iface frame.Interface) bool {
		log.Printf("received ping command on %v", iface)
		return true
	})

	logMeasurement := func(name string) dispatch.TypeHandler {
		return func(r tlv.Record, iface frame.Interface) bool {
			v, err := tlv.ExtractScaled(r)
			if err != nil {
				log.Printf("malformed %s record on %v: %v", name, iface, err)
				return false
			}
			log.Printf("%s = %.4f on %v", name, v, iface)
			return true
		}
	}

	engine.RegisterTypeHandler(tlv.VBUS, logMeasurement("VBUS"))
	engine.RegisterTypeHandler(tlv.IBUS, logMeasurement("IBUS"))
	engine.RegisterTypeHandler(tlv.PBUS, logMeasurement("PBUS"))
	engine.RegisterTypeHandler(tlv.TEMP, logMeasurement("TEMP"))

	engine.RegisterTypeHandler(tlv.String, func(r tlv.Record, iface frame.Interface) bool {
		log.Printf("string record on %v: %q", iface, r.Value())
		return true
	})

	engine.RegisterAckNotify(func(originalFrameID byte, iface frame.Interface) {
		log.Printf("peer acked frame 0x%02X on %v", originalFrameID, iface)
	})
	engine.RegisterNackNotify(func(originalFrameID byte, iface frame.Interface) {
		log.Printf("peer nacked frame 0x%02X on %v", originalFrameID, iface)
	})
}
