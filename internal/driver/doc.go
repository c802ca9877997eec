// Package driver defines the native-UI capability the extraction layer drives.
//
// The trading client exposes no API, so every extraction is a sequence of
// OS-level actions: locate a control, bring its window to the front, send
// keystrokes or post window messages, read the clipboard, capture a region as
// an image, and poll for dialogs. Driver is the contract for those actions.
// The Win32 implementation lives outside this module; package replay provides
// a scripted implementation for rehearsals and tests.
//
// Key sequences use the SendKeys notation the client automation tooling
// understands: ^ is Ctrl, % is Alt, and {ENTER} names a special key.
package driver
