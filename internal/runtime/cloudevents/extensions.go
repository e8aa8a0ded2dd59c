package cloudevents

// Extension attributes carried on shipped events.
const (
	// ExtSHA1 is the hex sha1 of the raw record.
	ExtSHA1 = "sha1"
	// ExtArrivalTime is when the record reached the function, in epoch ms.
	ExtArrivalTime = "arrivaltime"
	// ExtFunctionVersion is the version of the function that shipped the record.
	ExtFunctionVersion = "functionversion"
	// ExtRequestID is the invocation request id.
	ExtRequestID = "requestid"
)

// SHA1 returns the record hash, or "" when not set.
func SHA1(evt Event) string {
	s, _ := evt.GetExtension(ExtSHA1).(string)
	return s
}

// ArrivalTime returns the arrival time in epoch ms, or 0 when not set.
func ArrivalTime(evt Event) int64 {
	switch v := evt.GetExtension(ExtArrivalTime).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
