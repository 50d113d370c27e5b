package handler

import _ "embed"

// uiPage is a single-file chat client. It keeps the transcript in the browser
// and posts it as history on every turn.
//
//go:embed ui/index.html
var uiPage []byte
