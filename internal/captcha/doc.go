// Package captcha intercepts the challenge dialog the trading client raises
// in front of grid data.
//
// A Handler is consulted before each clipboard read. When the session says a
// challenge may be pending and the dialog is actually up, the handler
// captures the challenge image, asks a recognize.Recognizer for the code,
// submits it and checks whether the dialog went away. The number of
// recognition attempts is bounded; when the budget runs out the dialog is
// cancelled and ErrCaptchaUnsolved is returned.
package captcha
