package daemon

import (
	"encoding/json"
	"fmt"
	"net"
)

// CallJSON performs one request/response round trip over conn for method,
// JSON-encoding params (if non-nil) into the request and JSON-decoding the
// response's result into result (if non-nil). It is the CLI-facing
// counterpart to Call, sparing every command from repeating the
// marshal/unmarshal boilerplate around the Params/Result string fields.
func CallJSON(conn net.Conn, method string, params any, result any) error {
	req := Request{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("daemon: marshaling params for %q: %w", method, err)
		}
		req.Params = string(data)
	}

	resp, err := Call(conn, req)
	if err != nil {
		return fmt.Errorf("daemon: calling %q: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("daemon: %s", resp.Error)
	}
	if result != nil && resp.Result != "" {
		if err := json.Unmarshal([]byte(resp.Result), result); err != nil {
			return fmt.Errorf("daemon: unmarshaling result for %q: %w", method, err)
		}
	}
	return nil
}
