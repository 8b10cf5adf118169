package serializer

import (
	"bytes"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/cockroachdb/errors"
)

// NewJSONSerializer creates a new serializer using newline delimited json
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) EncodeRequest(req *common.Request) ([]byte, error) {
	return encodeLine(req)
}

func (j jsonSerializerImpl) DecodeRequest(line []byte) (*common.Command, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, errors.Wrap(common.ErrMalformedRequest, "expected a JSON object")
	}

	var req common.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, errors.Wrapf(common.ErrMalformedRequest, "%v", err)
	}
	return req.Command(), nil
}

func (j jsonSerializerImpl) EncodeResponse(resp *common.Response) ([]byte, error) {
	return encodeLine(resp)
}

func (j jsonSerializerImpl) DecodeResponse(line []byte, resp *common.Response) error {
	return json.Unmarshal(line, resp)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// encodeLine marshals v without html escaping and terminates it with a newline
func encodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
