package captcha

import "errors"

// ErrCaptchaUnsolved is returned when the attempt budget ran out before the
// challenge dialog was dismissed. Retrying the whole extraction may succeed.
var ErrCaptchaUnsolved = errors.New("captcha challenge unsolved")
