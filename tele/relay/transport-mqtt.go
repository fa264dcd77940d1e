package relay

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
)

// MQTTTransport publishes readings to remote monitor broker, QoS 1.
type MQTTTransport struct {
	log  *log2.Log
	m    mqtt.Client
	mopt *mqtt.ClientOptions

	topicConnect string
	topicReading string
	config       Config
}

var _ Transporter = &MQTTTransport{}

func (self *MQTTTransport) Init(ctx context.Context, log *log2.Log, config Config) error {
	self.log = log
	self.config = config
	mqtt.ERROR = mqttLogger{log, log2.LError}
	mqtt.CRITICAL = mqttLogger{log, log2.LError}
	mqtt.WARN = mqttLogger{log, log2.LWarn}
	if config.LogDebug {
		mqtt.DEBUG = mqttLogger{log, log2.LDebug}
	}

	self.topicConnect = fmt.Sprintf("%s/c", config.ClientID)
	self.topicReading = config.Topic
	keepAlive := helpers.IntSecondDefault(config.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(config.KeepaliveSec/2, 30*time.Second)
	self.mopt = mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetBinaryWill(self.topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(false).
		SetClientID(config.ClientID).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetryInterval(pingTimeout).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry token completes only after first successful connect
	if token := self.m.Connect(); token.Error() != nil {
		self.log.Errorf("mqtt connect err=%v", token.Error())
	}
	return nil
}

func (self *MQTTTransport) Send(payload []byte) bool {
	if !self.m.IsConnectionOpen() {
		return false
	}
	timeout := helpers.IntSecondDefault(self.config.PublishSec, 10*time.Second)
	token := self.m.Publish(self.topicReading, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		self.log.Warnf("mqtt publish topic=%s timeout=%s", self.topicReading, timeout)
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Warnf("mqtt publish topic=%s err=%v", self.topicReading, err)
		return false
	}
	return true
}

func (self *MQTTTransport) Close() {
	if self.m == nil {
		return
	}
	if self.m.IsConnectionOpen() {
		self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(helpers.IntSecondDefault(self.config.PublishSec, 10*time.Second))
	}
	self.m.Disconnect(250)
	self.log.Infof("mqtt disconnected")
}

func (self *MQTTTransport) connectLostHandler(c mqtt.Client, err error) {
	self.log.Warnf("mqtt connection lost err=%v", err)
}

func (self *MQTTTransport) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connected broker=%s", self.config.Broker)
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}

// mqttLogger routes paho logs to log2 at fixed level.
type mqttLogger struct {
	log   *log2.Log
	level log2.Level
}

func (l mqttLogger) Println(v ...interface{}) {
	l.log.Log(l.level, "mqtt: "+fmt.Sprintln(v...))
}
func (l mqttLogger) Printf(format string, v ...interface{}) {
	l.log.Logf(l.level, "mqtt: "+format, v...)
}
