package wire

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is stamped into every request envelope. The endpoint
// rejects versions outside the supported range so that shape drift
// between generations fails loudly instead of corrupting a decode.
const ProtocolVersion = "1.0.0"

var supportedProtocol = semver.MustParse("1.0.0")

// CheckProtocol verifies a request's protocol version: same major as the
// endpoint, and not newer than what the endpoint implements.
func CheckProtocol(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("wire: malformed protocol version %q: %w", version, err)
	}
	if v.Major() != supportedProtocol.Major() {
		return fmt.Errorf("wire: protocol major %d not supported (endpoint speaks %s)", v.Major(), ProtocolVersion)
	}
	if v.GreaterThan(supportedProtocol) {
		return fmt.Errorf("wire: protocol %s is newer than endpoint %s", version, ProtocolVersion)
	}
	return nil
}
