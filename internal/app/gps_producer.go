package app

import (
	"bufio"
	"encoding/json"
	"log"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/wristcuff/fingertrace/internal/config"
	"github.com/wristcuff/fingertrace/internal/geomag"
	"github.com/wristcuff/fingertrace/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes position/velocity/quality plus the geomagnetic reference
// derived from the fix's latitude to MQTT.
func RunGPSProducer() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDGPS)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := bufio.NewReader(port)

	var position gps.Position
	var velocity gps.Velocity
	var quality gps.Quality
	lastReference := geomag.Default

	publishJSON := func(topic string, data interface{}) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("JSON marshal error for %s: %v", topic, err)
			return
		}
		token := client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Publish error to %s: %v", topic, token.Error())
		}
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("GPS read error: %v", err)
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)

			position.Time = m.Time.String()
			position.Date = m.Date.String()
			position.Latitude = m.Latitude
			position.Longitude = m.Longitude
			position.Validity = string(m.Validity)

			velocity.SpeedKnots = m.Speed
			velocity.CourseDeg = m.Course

			publishJSON(cfg.TopicGPSPosition, position)
			publishJSON(cfg.TopicGPSVelocity, velocity)

			// A fresh valid fix may put us far enough from the last
			// reference latitude to matter to the AHRS's expected-field
			// computation, so republish whenever the fix is valid.
			if ref, ok := position.Reference(); ok {
				lastReference = ref
				publishJSON(cfg.TopicGPSReference, lastReference)
				log.Printf("published GPS: lat=%.6f lon=%.6f fix=%s ref(horizontal=%.1fuT vertical=%.1fuT declination=%.2f)",
					position.Latitude, position.Longitude, position.Validity,
					lastReference.Horizontal, lastReference.Vertical, lastReference.Declination)
			}

		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)

			position.Altitude = m.Altitude
			quality.NumSatellites = m.NumSatellites
			quality.HDOP = m.HDOP

			switch m.FixQuality {
			case "0":
				quality.FixQuality = "invalid"
			case "1":
				quality.FixQuality = "GPS"
			case "2":
				quality.FixQuality = "DGPS"
			case "4":
				quality.FixQuality = "RTK fixed"
			case "5":
				quality.FixQuality = "RTK float"
			default:
				quality.FixQuality = m.FixQuality
			}

			publishJSON(cfg.TopicGPSPosition, position)
			publishJSON(cfg.TopicGPSQuality, quality)

		case nmea.TypeGSA:
			m := sentence.(nmea.GSA)

			switch m.FixType {
			case "1":
				quality.FixType = "no fix"
			case "2":
				quality.FixType = "2D"
			case "3":
				quality.FixType = "3D"
			default:
				quality.FixType = m.FixType
			}
			quality.PDOP = m.PDOP
			quality.HDOP = m.HDOP
			quality.VDOP = m.VDOP

			publishJSON(cfg.TopicGPSQuality, quality)

		case nmea.TypeVTG:
			m := sentence.(nmea.VTG)
			velocity.SpeedKmh = m.GroundSpeedKPH
			publishJSON(cfg.TopicGPSVelocity, velocity)

		default:
			// GSV and other sentence types carry no data this producer needs.
		}
	}
}
