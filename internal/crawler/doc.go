// Package crawler implements the profile walk: the page-accessor contract,
// locator values, the date window, the session bootstrap, and the controller
// that steps from post to post emitting one PostRecord per visited post.
package crawler
