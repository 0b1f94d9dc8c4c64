// Command catalog-extract writes the allow-listed courses of the ExploreCourses
// catalog to a JSON file.
package main

import "github.com/pfrederiksen/course-catalog/internal/cli"

func main() {
	cli.Execute()
}
