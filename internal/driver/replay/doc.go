// Package replay implements driver.Driver against a scripted model of the
// trading client.
//
// A Fixture lists the grids, report buttons and captcha behavior of an
// imaginary client. The replay Driver keeps a stack of open dialogs and
// reacts to keystrokes, clicks and window messages the way the client
// does: copying fills the clipboard, Ctrl+S opens the save dialog,
// confirming it writes the export file, and a pending captcha puts its
// dialog in front and its text on the clipboard until the right code is
// entered. It lets the extraction pipeline be rehearsed without Windows.
package replay
