// Package extract reads post fields and paginated comments from an open post.
package extract
