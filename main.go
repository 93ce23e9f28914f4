// Command arxiv-crawler runs the historical arXiv metadata crawler.
package main

import "github.com/JakeFAU/arxiv-crawler/cmd"

func main() {
	cmd.Execute()
}
