// Command examrag ingests exam papers and syllabus documents and queries
// the resulting corpus.
package main

func main() {
	Execute()
}
