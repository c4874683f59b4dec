// Package awsiot provides the shared building blocks of a device-side client
// for AWS IoT Core services.
//
// The root package defines the transport-neutral Connection interface, the
// Message type, lifecycle events, sentinel errors, the generic ServiceError,
// topic helpers, enum tables, and the logging and metrics interfaces used by
// every other package.
//
// # Layout
//
//   - connection/mqtt5: Connection backed by an MQTT v5.0 client
//   - connection/mqtt311: Connection backed by an MQTT 3.1.1 client
//   - reqresp: request/response correlation and streaming subscriptions
//   - iotjobs, iotshadow, iotidentity, iotcommands: service clients and models
//   - iotsecuretunneling: tunnel notifications
//   - devicedefender: periodic Device Defender metrics reports
//   - greengrass: IPC configuration and core discovery
//   - sigv4: presigned MQTT over WebSocket URLs
//
// # Usage
//
//	tlsConfig, err := awsiot.NewTLSConfig("dev-1.pem.crt", "dev-1.pem.key", "AmazonRootCA1.pem")
//
//	conn, err := mqtt5.Dial(ctx,
//	    mqtt5.WithEndpoint("example-ats.iot.eu-west-1.amazonaws.com", tlsConfig),
//	    mqtt5.WithClientOptions(mqttv5.WithClientID("dev-1")),
//	)
//	defer conn.Close()
//
//	rr, err := reqresp.NewClient(conn)
//	defer rr.Close()
//
//	shadow := iotshadow.NewClientV2(rr)
//	resp, err := shadow.GetShadow(ctx, &iotshadow.GetShadowRequest{
//	    ThingName: awsiot.String("dev-1"),
//	})
//
// # Errors
//
// Service operations return *ServiceError[E]. A modeled error carries the
// payload received on a rejected topic; an unmodeled error wraps a sentinel
// such as ErrTimeout or ErrPayloadParse:
//
//	var se *awsiot.ServiceError[iotshadow.V2ErrorResponse]
//	if errors.As(err, &se) && se.HasModeledError() {
//	    log.Println(*se.ModeledError().Code)
//	}
package awsiot
