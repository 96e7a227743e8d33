// The main package for the profile-crawler executable.
package main

import "github.com/JakeFAU/profile-crawler/cmd"

func main() {
	cmd.Execute()
}
