// Package recognize turns a captured captcha image into text.
//
// Recognizer is the only contract the captcha handler depends on. Three
// variants are provided, selected by configuration:
//   - Tesseract: local OCR through the tesseract binary after binarizing the image
//   - Remote: an HTTP OCR service using client-credential tokens
//   - Manual: shows the image path to an operator and reads the answer
//
// Recognition is allowed to be slow and to fail; the captcha handler treats
// every failure as one consumed attempt.
package recognize
