package gateway

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens returns the number of tokens in text for the given model.
// Unknown models fall back to the cl100k_base encoding. Returns an
// error only when no encoding can be loaded at all.
func CountTokens(model, text string) (int, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	return len(tkm.Encode(text, nil, nil)), nil
}
