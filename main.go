// Command docmeta collects document metadata from a table-driven listing page.
package main

import "github.com/JakeFAU/docmeta-crawler/cmd"

func main() {
	cmd.Execute()
}
