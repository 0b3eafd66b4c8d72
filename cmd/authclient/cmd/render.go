package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goliatone/go-print"
)

// printJSON writes v as tab indented JSON.
func printJSON(w io.Writer, v any) {
	fmt.Fprint(w, print.MaybePrettyJSON(v))
}

// printBody writes a response body, indented when it is JSON.
func printBody(w io.Writer, data []byte) {
	var decoded any
	if json.Unmarshal(data, &decoded) == nil {
		printJSON(w, decoded)
		return
	}
	if len(data) > 0 {
		fmt.Fprintln(w, string(data))
	}
}
