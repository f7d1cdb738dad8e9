// Package lib acts as a library for modules that do not fit
// strictly into other layers.
//
// It contains shared utilities and the FTP client that downloads the
// attendance feed.
package lib
