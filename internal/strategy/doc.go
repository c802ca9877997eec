// Package strategy extracts grid contents from the trading client.
//
// The client's grid control cannot be read directly, so each Strategy
// makes the client hand over its data through another channel:
//
//   - copy (ClipboardCopy): select all and copy with keystrokes, read the clipboard
//   - wmcopy (WindowMessageCopy): post the copy command to the grid, read the clipboard
//   - xls (FileExport): save the grid through the "save as" dialog, read the file
//   - tdxxls (MultiSectionFileExport): use the report export button, read the file
//
// Clipboard strategies route through a captcha.Handler because the client
// may put a challenge dialog in front of the grid. Every strategy returns
// either a parsed result or an error; an empty grid is an empty result, not
// an error.
package strategy
