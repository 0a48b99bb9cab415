package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Pusher protocol event names.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	eventSubscriptionError     = "pusher_internal:subscription_error"

	internalPrefix = "pusher_internal:"
	protocolPrefix = "pusher:"

	// PrivatePrefix marks channels that require authorization.
	PrivatePrefix = "private-"

	protocolVersion = 7
)

// frame is an inbound protocol frame. Data holds the payload with the
// protocol's string wrapping removed.
type frame struct {
	Event   string
	Channel string
	Data    []byte
}

// decodeFrame parses one inbound text frame.
func decodeFrame(raw []byte) (frame, error) {
	if !gjson.ValidBytes(raw) {
		return frame{}, ErrMalformedFrame
	}
	res := gjson.GetManyBytes(raw, "event", "channel", "data")
	if res[0].Type != gjson.String || res[0].Str == "" {
		return frame{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}

	f := frame{Event: res[0].Str, Channel: res[1].String()}
	switch data := res[2]; data.Type {
	case gjson.Null:
		// Absent or explicit null.
	case gjson.String:
		// Servers send data as a JSON-encoded string.
		f.Data = []byte(data.Str)
	default:
		f.Data = []byte(data.Raw)
	}
	return f, nil
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

func encodeSubscribe(channel, auth string) []byte {
	return mustEncode(outbound{Event: eventSubscribe, Data: subscribeData{Channel: channel, Auth: auth}})
}

func encodeUnsubscribe(channel string) []byte {
	return mustEncode(outbound{Event: eventUnsubscribe, Data: unsubscribeData{Channel: channel}})
}

func encodePing() []byte {
	return mustEncode(outbound{Event: eventPing, Data: struct{}{}})
}

func encodePong() []byte {
	return mustEncode(outbound{Event: eventPong, Data: struct{}{}})
}

func mustEncode(v outbound) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("realtime: encode %s: %v", v.Event, err))
	}
	return b
}

// established is the payload of pusher:connection_established.
type established struct {
	SocketID        string
	ActivityTimeout int // seconds
}

func parseEstablished(data []byte) (established, error) {
	res := gjson.GetManyBytes(data, "socket_id", "activity_timeout")
	if res[0].Str == "" {
		return established{}, fmt.Errorf("%w: connection_established without socket_id", ErrMalformedFrame)
	}
	return established{SocketID: res[0].Str, ActivityTimeout: int(res[1].Int())}, nil
}

// protocolError is the payload of pusher:error.
type protocolError struct {
	Code    int
	Message string
}

func parseProtocolError(data []byte) protocolError {
	res := gjson.GetManyBytes(data, "code", "message")
	pe := protocolError{Code: int(res[0].Int()), Message: res[1].String()}
	if pe.Message == "" {
		pe.Message = "unknown error"
	}
	return pe
}

// fatal reports whether the server is closing the connection.
// 4000-4099 must not reconnect, 4100-4299 may.
func (pe protocolError) fatal() bool {
	return pe.Code >= 4000 && pe.Code < 4300
}

func (pe protocolError) Error() string {
	if pe.Code == 0 {
		return pe.Message
	}
	return fmt.Sprintf("%s (code %d)", pe.Message, pe.Code)
}

// subscriptionErrorMessage extracts a readable message from
// pusher_internal:subscription_error data.
func subscriptionErrorMessage(data []byte) string {
	res := gjson.GetManyBytes(data, "error", "type", "status")
	switch {
	case res[0].String() != "":
		return res[0].String()
	case res[1].String() != "" && res[2].Exists():
		return fmt.Sprintf("%s (status %d)", res[1].String(), res[2].Int())
	case res[1].String() != "":
		return res[1].String()
	}
	if len(data) > 0 && data[0] != '{' {
		if gjson.ValidBytes(data) {
			return gjson.ParseBytes(data).String()
		}
		return string(data)
	}
	return "subscription rejected"
}

// PrivateChannel returns name with the private- prefix, adding it if absent.
func PrivateChannel(name string) string {
	if strings.HasPrefix(name, PrivatePrefix) {
		return name
	}
	return PrivatePrefix + name
}

// endpointURL builds the socket URL for an application key.
func endpointURL(base, appKey, clientVersion string) string {
	return fmt.Sprintf("%s/app/%s?protocol=%d&client=fundsync-go&version=%s&flash=false",
		strings.TrimRight(base, "/"), appKey, protocolVersion, clientVersion)
}
