package tabular

import "errors"

// ErrMalformedTable is returned when raw grid output cannot be parsed into
// records. When the input came from the clipboard this usually means the
// clipboard held the text of a captcha dialog rather than grid data.
var ErrMalformedTable = errors.New("malformed table")
