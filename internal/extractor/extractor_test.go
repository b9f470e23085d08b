package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTML(t *testing.T) {
	html := []byte(`<html><body>
		<h2>Install the CLI</h2>
		<p>Run the installer.</p>
		<pre>curl -sL https://example.com/install.sh | bash</pre>
		<h2>Windows installation</h2>
		<p>Use the package manager.</p>
		<pre>choco install example-cli</pre>
		<pre>   </pre>
	</body></html>`)

	blocks := ExtractHTML(html)
	require.Len(t, blocks, 2)

	assert.Equal(t, "Install the CLI\n\nRun the installer.", blocks[0].Context)
	assert.Equal(t, "curl -sL https://example.com/install.sh | bash", blocks[0].Code)
	assert.False(t, blocks[0].WindowsHeader)

	assert.Contains(t, blocks[1].Context, "Windows installation")
	assert.True(t, blocks[1].WindowsHeader)
	assert.False(t, blocks[1].UnderPowerShellTab)
}

func TestExtractHTMLPowerShellTab(t *testing.T) {
	html := []byte(`<body>
		<h3>Create a cluster</h3>
		<div data-tab="azure-powershell">
			<pre>New-AzAksCluster -Name demo</pre>
		</div>
		<div data-tab="azure-cli">
			<pre>az aks create --name demo</pre>
		</div>
	</body>`)

	blocks := ExtractHTML(html)
	require.Len(t, blocks, 2)

	assert.True(t, blocks[0].UnderPowerShellTab)
	assert.False(t, blocks[1].UnderPowerShellTab)
	assert.Equal(t, "Create a cluster", blocks[1].Context)
}

func TestExtractHTMLSectionHeading(t *testing.T) {
	html := []byte(`<body><section>
		<h2>Configure networking</h2>
		<div><pre>az network vnet create</pre></div>
	</section></body>`)

	blocks := ExtractHTML(html)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Configure networking", blocks[0].Context)
}

func TestExtractHTMLNoBlocks(t *testing.T) {
	assert.Empty(t, ExtractHTML([]byte(`<p>prose only</p>`)))
	assert.Empty(t, ExtractHTML([]byte(``)))
}

func TestExtractMarkdown(t *testing.T) {
	source := []byte("# Guide\n\n## Setup on Windows\n\n```powershell\nSet-ExecutionPolicy RemoteSigned\n```\n\n## Setup on Linux\n\n```bash\nsudo apt install example\n```\n\n```\n```\n")

	blocks := ExtractMarkdown(source)
	require.Len(t, blocks, 2)

	assert.Equal(t, "Setup on Windows", blocks[0].Context)
	assert.Equal(t, "Set-ExecutionPolicy RemoteSigned", blocks[0].Code)
	assert.True(t, blocks[0].WindowsHeader)

	assert.Equal(t, "Setup on Linux", blocks[1].Context)
	assert.Equal(t, "sudo apt install example", blocks[1].Code)
	assert.False(t, blocks[1].WindowsHeader)
}

func TestExtractMarkdownParagraphContext(t *testing.T) {
	source := []byte("## Setup\n\nInstall the CLI before continuing.\n\n```bash\ncurl -sL https://example.com | bash\n```\n")

	blocks := ExtractMarkdown(source)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Setup\n\nInstall the CLI before continuing.", blocks[0].Context)
}

func TestExtractMarkdownNoFences(t *testing.T) {
	assert.Empty(t, ExtractMarkdown([]byte("# Title\n\nJust prose, and `inline code`.\n")))
}

func TestNormalizeHTML(t *testing.T) {
	html := []byte(`<html><head><title>AKS quickstart</title></head><body><h1>Quickstart</h1><p>Deploy a cluster.</p></body></html>`)

	markdown, title, err := NormalizeHTML("https://docs.example.com/en-us/azure/aks/quickstart", html)
	require.NoError(t, err)
	assert.Equal(t, "AKS quickstart", title)
	assert.Contains(t, markdown, "Quickstart")
	assert.Contains(t, markdown, "Deploy a cluster.")
}

func TestNormalizeHTMLStableAcrossMarkupEdits(t *testing.T) {
	a := []byte(`<body><h1>Guide</h1><p>Same words.</p></body>`)
	b := []byte(`<body>
		<h1>Guide</h1>
		<p>Same words.</p>
	</body>`)

	mdA, _, err := NormalizeHTML("https://docs.example.com/guide", a)
	require.NoError(t, err)
	mdB, _, err := NormalizeHTML("https://docs.example.com/guide", b)
	require.NoError(t, err)
	assert.Equal(t, mdA, mdB)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "From title tag", ExtractTitle([]byte(`<title>From title tag</title><h1>H1</h1>`)))
	assert.Equal(t, "From h1", ExtractTitle([]byte(`<h1>From h1</h1>`)))
	assert.Equal(t, "", ExtractTitle([]byte(`<p>no headings</p>`)))
}

func TestMarkdownTitle(t *testing.T) {
	assert.Equal(t, "Getting started", MarkdownTitle([]byte("Some intro\n\n# Getting started\n\nBody")))
	assert.Equal(t, "", MarkdownTitle([]byte("## Only a subheading\n")))
}
