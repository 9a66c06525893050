// Package opcua implements the instrument transport on top of
// github.com/gopcua/opcua.
//
// A Dialer opens one OPC UA client session per Dial. The returned
// connection implements instrument.Conn: single and batched reads of the
// Value attribute, change subscriptions, setpoint writes with an explicit
// wire type, and method calls on the instrument's control object.
//
// # Control object
//
// Remote methods live on an object below the Objects folder. Its browse
// name is resolved once per connection, trying each configured name in
// order (by default "LIDER", then "Controls"):
//
//	Objects/2:LIDER  ->  ns=2;s=ServFixed, ns=2;s=update_time, ...
//
// # Link loss
//
// The gopcua client's own reconnect logic is disabled. The session
// manager owns reconnection, so a publish error closes the subscription's
// notification channel and the session treats that as a lost link.
//
// # Usage
//
//	dialer := opcua.NewDialer(opcua.Options{
//	    Namespace:      2,
//	    ControlObjects: []string{"LIDER", "Controls"},
//	    DialTimeout:    10 * time.Second,
//	    RequestTimeout: 5 * time.Second,
//	})
//	conn, err := dialer.Dial(ctx, "opc.tcp://lidar.local:4840")
package opcua
